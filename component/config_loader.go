package component

// ConfigLoader read access to layered configuration.
// Components read their own sections through it:
//
//	var settings kafka.Settings
//	if err := loader.Unmarshal("kafka", &settings); err != nil {
//	    return err
//	}
type ConfigLoader interface {
	Get(key string) any
	Unmarshal(key string, v any) error
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	IsSet(key string) bool
}
