package internal

import "time"

type Config struct {
	BufferSize      int           `env:"BUFFER_SIZE,required=true"`
	NumberOfWorkers int           `env:"NUMBER_OF_WORKERS,required=true"`
	LimitMessages   *int          `env:"LIMIT_MESSAGES"`
	SinkTimeout     time.Duration `env:"SINK_TIMEOUT,required=true"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,required=true"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,required=true"`

	HTTPHost string `env:"HTTP_HOST,required=true"`
	HTTPPort int    `env:"HTTP_PORT,required=true"`

	BadgerFilepath    string `env:"BADGER_FILEPATH,required=true"`
	AttachmentDir     string `env:"ATTACHMENT_DIR,required=true"`
	AttachmentBaseURL string `env:"ATTACHMENT_BASE_URL,required=true"`
	LogLevel          string `env:"LOG_LEVEL,required=true"`
}
