package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"deal-lab/contract"
	"deal-lab/domain"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DiskAttachmentStore keeps attachment files on local disk and hands out
// stable URLs of the form {baseURL}/{storedName}. The MIME type is
// sniffed from content, not trusted from the file name.
type DiskAttachmentStore struct {
	root    string
	baseURL string
	log     *slog.Logger
}

func NewDiskAttachmentStore(root, baseURL string, log *slog.Logger) (*DiskAttachmentStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating attachment root: %w", err)
	}
	return &DiskAttachmentStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/"), log: log}, nil
}

func (s *DiskAttachmentStore) Save(fileName string, content []byte) (domain.Attachment, error) {
	// UUID prefix keeps identically-named uploads from colliding.
	storedName := fmt.Sprintf("%s-%s", uuid.New(), filepath.Base(fileName))
	path := filepath.Join(s.root, storedName)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return domain.Attachment{}, fmt.Errorf("writing attachment: %w", err)
	}

	mime := mimetype.Detect(content)
	attachment := domain.Attachment{
		FileName: filepath.Base(fileName),
		URL:      fmt.Sprintf("%s/%s", s.baseURL, storedName),
		Size:     int64(len(content)),
		MimeType: mime.String(),
	}
	s.log.Debug("Attachment stored", "url", attachment.URL, "mime", attachment.MimeType, "size", attachment.Size)
	return attachment, nil
}

func (s *DiskAttachmentStore) Delete(url string) error {
	storedName := url[strings.LastIndex(url, "/")+1:]
	if storedName == "" {
		return fmt.Errorf("malformed attachment url %q", url)
	}
	return os.Remove(filepath.Join(s.root, storedName))
}

var _ contract.IAttachmentStore = (*DiskAttachmentStore)(nil)
