package kafka

import "github.com/jknl-dev/platform-kit/errcode"

// Module code 60 = kafka
var (
	ErrInvalidConfig        = errcode.Register(errcode.New(60, 1, "kafka", "error.kafka.invalid_config", "invalid kafka configuration"))
	ErrNotConnected         = errcode.Register(errcode.New(60, 2, "kafka", "error.kafka.not_connected", "not connected"))
	ErrNoHandlersRegistered = errcode.Register(errcode.New(60, 3, "kafka", "error.kafka.no_handlers_registered", "no topic handlers registered"))
	ErrAlreadyRunning       = errcode.Register(errcode.New(60, 4, "kafka", "error.kafka.already_running", "consumer is already running"))
	ErrNoSubscriptions      = errcode.Register(errcode.New(60, 5, "kafka", "error.kafka.no_subscriptions", "no topics subscribed"))
	ErrEmptyRecords         = errcode.Register(errcode.New(60, 6, "kafka", "error.kafka.empty_records", "no records to send"))
	ErrEmptyTopic           = errcode.Register(errcode.New(60, 7, "kafka", "error.kafka.empty_topic", "topic cannot be empty"))
	ErrSendFailed           = errcode.Register(errcode.New(60, 8, "kafka", "error.kafka.send_failed", "send failed"))
	ErrHandlerFailed        = errcode.Register(errcode.New(60, 9, "kafka", "error.kafka.handler_failed", "message handler failed"))
	ErrDecode               = errcode.Register(errcode.New(60, 10, "kafka", "error.kafka.decode", "payload does not match handler type"))
	ErrDisconnectAll        = errcode.Register(errcode.New(60, 11, "kafka", "error.kafka.disconnect_all", "disconnect all failed"))
)
