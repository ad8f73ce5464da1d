package main

import (
	"strings"
	"time"
)

type Config struct {
	HTTPAddr             string        `env:"HTTP_ADDR,default=:8080"`
	GRPCAddr             string        `env:"GRPC_ADDR,default=:9090"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	JWTSecret            string        `env:"JWT_SECRET,required=true"`
	StoreDriver          string        `env:"STORE_DRIVER,default=badger"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,default=./data/badger"`
	PostgresDSN          string        `env:"POSTGRES_DSN"`
	BlugeFilepath        string        `env:"BLUGE_FILEPATH,default=./data/bluge"`
	DocsDir              string        `env:"DOCS_DIR"`
	AttachmentsDir       string        `env:"ATTACHMENTS_DIR,default=./data/attachments"`
	AttachmentsBaseURL   string        `env:"ATTACHMENTS_BASE_URL,default=/attachments"`
	MaxAttachmentBytes   int64         `env:"MAX_ATTACHMENT_BYTES,default=10485760"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,default=100ms"`
	KeepAliveInterval    time.Duration `env:"KEEPALIVE_INTERVAL,default=30s"`
	PresenceOfflineGrace time.Duration `env:"PRESENCE_OFFLINE_GRACE,default=0s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	AssistantUserID      string        `env:"ASSISTANT_USER_ID,default=assistant"`
	AssistantDisplayName string        `env:"ASSISTANT_DISPLAY_NAME,default=Assistant"`
	AssistantHandles     string        `env:"ASSISTANT_HANDLES,default=@assistant @ai"`
	AssistantTimeout     time.Duration `env:"ASSISTANT_TIMEOUT,default=20s"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=4000"`
	LimitMessages        int           `env:"LIMIT_MESSAGES,default=50"`
	WriteRatePerSecond   float64       `env:"WRITE_RATE_PER_SECOND,default=5"`
	WriteBurst           int           `env:"WRITE_BURST,default=10"`
}

// Handles splits ASSISTANT_HANDLES, a space separated list.
func (c Config) Handles() []string {
	return strings.Fields(c.AssistantHandles)
}
