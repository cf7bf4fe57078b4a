//nolint:lll
package config

// Config is the complete platex configuration, shared by every command and
// loaded from file, environment and flags.
type Config struct {
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Plate    PlateConfig    `mapstructure:"plate" yaml:"plate" json:"plate"`
	Document DocumentConfig `mapstructure:"document" yaml:"document" json:"document"`
	OCR      OCRConfig      `mapstructure:"ocr" yaml:"ocr" json:"ocr"`
	Parallel ParallelConfig `mapstructure:"parallel" yaml:"parallel" json:"parallel"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output" json:"output"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server" json:"server"`
	Batch    BatchConfig    `mapstructure:"batch" yaml:"batch" json:"batch"`
	GPU      GPUConfig      `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// StageConfig describes one detector stage.
type StageConfig struct {
	ModelPath    string   `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	LabelsPath   string   `mapstructure:"labels_path" yaml:"labels_path" json:"labels_path"`
	Threshold    float64  `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
	Anchor       string   `mapstructure:"anchor" yaml:"anchor" json:"anchor"`
	NMSThreshold float64  `mapstructure:"nms_threshold" yaml:"nms_threshold" json:"nms_threshold"`
	NumThreads   int      `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	AllowList    []string `mapstructure:"allow_list" yaml:"allow_list" json:"allow_list"`
}

// FieldOCRConfig controls how one kind of field is read.
type FieldOCRConfig struct {
	AllowList string `mapstructure:"allow_list" yaml:"allow_list" json:"allow_list"`
	Margin    int    `mapstructure:"margin" yaml:"margin" json:"margin"`
	Mode      string `mapstructure:"mode" yaml:"mode" json:"mode"`
}

// DeskewConfig controls skew correction of plate crops.
type DeskewConfig struct {
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	AngleThreshold float64 `mapstructure:"angle_threshold" yaml:"angle_threshold" json:"angle_threshold"`
}

// PlateConfig configures the two-stage plate deployment.
type PlateConfig struct {
	Enabled             bool           `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Localizer           StageConfig    `mapstructure:"localizer" yaml:"localizer" json:"localizer"`
	Fields              StageConfig    `mapstructure:"fields" yaml:"fields" json:"fields"`
	TransformsPath      string         `mapstructure:"transforms_path" yaml:"transforms_path" json:"transforms_path"`
	OCRClasses          []string       `mapstructure:"ocr_classes" yaml:"ocr_classes" json:"ocr_classes"`
	OCR                 FieldOCRConfig `mapstructure:"ocr" yaml:"ocr" json:"ocr"`
	Deskew              DeskewConfig   `mapstructure:"deskew" yaml:"deskew" json:"deskew"`
	LayoutsPath         string         `mapstructure:"layouts_path" yaml:"layouts_path" json:"layouts_path"`
	IncompleteIsSuccess bool           `mapstructure:"incomplete_is_success" yaml:"incomplete_is_success" json:"incomplete_is_success"`
}

// RolesConfig binds detector class names to document field roles.
type RolesConfig struct {
	IDNumber string `mapstructure:"id_number" yaml:"id_number" json:"id_number"`
	Name     string `mapstructure:"name" yaml:"name" json:"name"`
	LastName string `mapstructure:"lastname" yaml:"lastname" json:"lastname"`
}

// DocumentOCRConfig holds per-role read settings.
type DocumentOCRConfig struct {
	IDNumber FieldOCRConfig `mapstructure:"id_number" yaml:"id_number" json:"id_number"`
	Name     FieldOCRConfig `mapstructure:"name" yaml:"name" json:"name"`
	LastName FieldOCRConfig `mapstructure:"lastname" yaml:"lastname" json:"lastname"`
}

// DocumentConfig configures the identity document deployment.
type DocumentConfig struct {
	Enabled  bool              `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Detector StageConfig       `mapstructure:"detector" yaml:"detector" json:"detector"`
	Roles    RolesConfig       `mapstructure:"roles" yaml:"roles" json:"roles"`
	OCR      DocumentOCRConfig `mapstructure:"ocr" yaml:"ocr" json:"ocr"`
}

// OCRConfig selects and configures the recognition engine.
type OCRConfig struct {
	Engine           string `mapstructure:"engine" yaml:"engine" json:"engine"`
	ModelPath        string `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	DictPath         string `mapstructure:"dict_path" yaml:"dict_path" json:"dict_path"`
	ImageHeight      int    `mapstructure:"image_height" yaml:"image_height" json:"image_height"`
	MaxWidth         int    `mapstructure:"max_width" yaml:"max_width" json:"max_width"`
	PadWidthMultiple int    `mapstructure:"pad_width_multiple" yaml:"pad_width_multiple" json:"pad_width_multiple"`
	NumThreads       int    `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	RemoteURL        string `mapstructure:"remote_url" yaml:"remote_url" json:"remote_url"`
	TimeoutSec       int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	Retries          int    `mapstructure:"retries" yaml:"retries" json:"retries"`
	RetryDelayMS     int    `mapstructure:"retry_delay_ms" yaml:"retry_delay_ms" json:"retry_delay_ms"`
}

// ParallelConfig contains parallel processing settings.
type ParallelConfig struct {
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format              string `mapstructure:"format" yaml:"format" json:"format"`
	File                string `mapstructure:"file" yaml:"file" json:"file"`
	ConfidencePrecision int    `mapstructure:"confidence_precision" yaml:"confidence_precision" json:"confidence_precision"`
}

// RateLimitConfig contains per-client request limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string          `mapstructure:"host" yaml:"host" json:"host"`
	Port            int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int             `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int             `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// BatchConfig contains batch and watch settings.
type BatchConfig struct {
	Kind            string   `mapstructure:"kind" yaml:"kind" json:"kind"`
	Recursive       bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	Extensions      []string `mapstructure:"extensions" yaml:"extensions" json:"extensions"`
	ContinueOnError bool     `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
	Progress        string   `mapstructure:"progress" yaml:"progress" json:"progress"`
}

// GPUConfig contains GPU acceleration settings.
type GPUConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Device      int    `mapstructure:"device" yaml:"device" json:"device"`
	MemoryLimit string `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"`
}
