package component

// Component names
const (
	ComponentConfig = "config"
	ComponentLogger = "logger"
	ComponentKafka  = "kafka"
)
