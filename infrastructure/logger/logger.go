package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"spot-sniper/monitor/logschema"
)

// Logger 封装zap日志器，提供结构化日志功能
type Logger struct {
	*zap.Logger
	config Config
}

// Config 日志配置
type Config struct {
	Level      string   `yaml:"level"`       // debug, info, warn, error
	Outputs    []string `yaml:"outputs"`     // stdout, file
	OutputFile string   `yaml:"output_file"` // 日志文件路径
	ErrorFile  string   `yaml:"error_file"`  // 错误日志单独文件
	Format     string   `yaml:"format"`      // json 或 console
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Outputs: []string{"stdout"},
		Format:  "json",
	}
}

// New 创建新的Logger实例
func New(cfg Config) (*Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if len(cfg.Outputs) == 0 {
		cfg.Outputs = []string{"stdout"}
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	cores := []zapcore.Core{}

	if contains(cfg.Outputs, "stdout") {
		var encoder zapcore.Encoder
		if cfg.Format == "console" {
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		} else {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	if contains(cfg.Outputs, "file") && cfg.OutputFile != "" {
		fileWriter, err := openAppend(cfg.OutputFile)
		if err != nil {
			return nil, fmt.Errorf("open log file failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(fileWriter),
			level,
		))
	}

	// 错误日志单独文件
	if cfg.ErrorFile != "" {
		errorWriter, err := openAppend(cfg.ErrorFile)
		if err != nil {
			return nil, fmt.Errorf("open error log file failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(errorWriter),
			zapcore.ErrorLevel,
		))
	}

	core := zapcore.NewTee(cores...)
	zapLogger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{
		Logger: zapLogger,
		config: cfg,
	}, nil
}

// Wrap 包装已有的 zap.Logger（测试中常配合 zaptest/observer 使用）。
func Wrap(l *zap.Logger) *Logger {
	return &Logger{Logger: l, config: DefaultConfig()}
}

// NewNop 返回不输出的 Logger。
func NewNop() *Logger {
	return Wrap(zap.NewNop())
}

// WithFields 添加字段返回新的logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{
		Logger: l.Logger.With(toZap(fields)...),
		config: l.config,
	}
}

// LogOrder 记录订单相关事件
func (l *Logger) LogOrder(event string, linkID string, fields map[string]interface{}) {
	fields = withEvent(fields, event)
	fields["orderLinkId"] = linkID
	l.checkSchema("order_event", fields)
	l.Info("order_event", toZap(fields)...)
}

// LogTrade 记录成交/持仓相关事件
func (l *Logger) LogTrade(event string, fields map[string]interface{}) {
	fields = withEvent(fields, event)
	l.checkSchema("trade_event", fields)
	l.Info("trade_event", toZap(fields)...)
}

// LogPhase 记录阶段切换
func (l *Logger) LogPhase(from, to string, fields map[string]interface{}) {
	fields = withEvent(fields, "phase_change")
	fields["from"] = from
	fields["to"] = to
	l.checkSchema("phase_event", fields)
	l.Info("phase_event", toZap(fields)...)
}

// LogAnomaly 记录需要人工关注但不中断流程的异常（如重复成交）。
func (l *Logger) LogAnomaly(event string, fields map[string]interface{}) {
	fields = withEvent(fields, event)
	l.checkSchema("anomaly_event", fields)
	l.Warn("anomaly_event", toZap(fields)...)
}

// LogError 记录错误并附带上下文
func (l *Logger) LogError(err error, context map[string]interface{}) {
	if context == nil {
		context = make(map[string]interface{})
	}
	context["error"] = err.Error()
	context["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	l.Error("error_event", toZap(context)...)
}

// Close 关闭日志器
func (l *Logger) Close() error {
	return l.Sync()
}

func (l *Logger) checkSchema(event string, fields map[string]interface{}) {
	if err := logschema.Validate(event, fields); err != nil {
		l.Debug("log schema mismatch", zap.String("schema", event), zap.Error(err))
	}
}

func withEvent(fields map[string]interface{}, event string) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	out["event"] = event
	out["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	return out
}

func toZap(fields map[string]interface{}) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return zapFields
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
