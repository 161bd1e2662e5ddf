package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	// ErrCodeNotFound 表示未给出输入文件，且 cwd 下没有 ordersheet.{yaml,yml,json}。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingInput 表示未给出输入文件，配置文件里也没有 input。
	ErrCodeMissingInput = "config_missing_input"
)

const (
	FileName  = "ordersheet"
	EnvPrefix = "ORDERSHEET"

	DefaultProvider    = "golomax"
	DefaultConcurrency = 4
	DefaultOutputName  = "output.csv"
	DefaultCache       = "off"
	DefaultCacheDir    = ".ordersheet-cache"
	DefaultPriceFormat = "plain"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultServeAddr   = ":8080"

	maxConcurrency = 32
)

// CLIArgs 是命令行能覆盖的项。带 Set 的字段保留“是否显式指定”，
// 这样 --provider= 之类的显式空值也能被识别为覆盖。
type CLIArgs struct {
	Input  string
	Output string

	Provider    string
	ProviderSet bool

	Cache    string
	CacheSet bool

	Addr string

	// InputOptional 为 true 时（serve）不要求输入文件，也不要求配置文件存在。
	InputOptional bool
}

// FileConfig 对应 ordersheet.{yaml,yml,json} 与 ORDERSHEET_* 环境变量。
type FileConfig struct {
	Input       string      `mapstructure:"input"`
	Output      string      `mapstructure:"output"`
	Provider    string      `mapstructure:"provider" validate:"omitempty,alphanum,lowercase"`
	Concurrency int         `mapstructure:"concurrency"`
	Proxy       ProxyConfig `mapstructure:"proxy"`
	BaseURL     string      `mapstructure:"base_url" validate:"omitempty,url"`
	Cache       string      `mapstructure:"cache" validate:"omitempty,oneof=off record replay"`
	CacheDir    string      `mapstructure:"cache_dir"`
	PriceFormat string      `mapstructure:"price_format" validate:"omitempty,oneof=plain es-AR"`
	Log         LogConfig   `mapstructure:"log"`
	Serve       ServeConfig `mapstructure:"serve"`
}

type ProxyConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json"`
}

type ServeConfig struct {
	Addr string `mapstructure:"addr"`
}

// EffectiveConfig 是合并并规范化后的最终配置，下游不再做默认值或优先级判断。
type EffectiveConfig struct {
	Input  string // 绝对路径；serve 时可为空
	Output string // 绝对路径；serve 时可为空

	Provider    string
	Concurrency int
	ProxyURL    string
	BaseURL     string

	Cache    string
	CacheDir string // 绝对路径

	PriceFormat string
	LogLevel    string
	LogFormat   string
	ServeAddr   string

	// ConfigFile 是实际读取的配置文件；没有则为空。
	ConfigFile string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未指定输入文件，且 %q 下没有 %s.{yaml,yml,json}", e.Code, e.Path, FileName)
	case ErrCodeMissingInput:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 input", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；不是 *Error 时返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

var validate = validator.New()

// LoadEffective 读取 cwd 下的配置文件与环境变量，并与 CLI 参数合并。
//
// 发现规则：
// 1) CLI 给了输入文件（或 InputOptional）：配置文件可选
// 2) 否则必须存在配置文件，且其中必须有 input
//
// 优先级：CLI > 环境变量 > 配置文件 > 内置默认值。
// 相对路径一律以 cwd 为基准。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	fc, cfgFile, err := readFileConfig(cwdAbs)
	if err != nil {
		return EffectiveConfig{}, err
	}

	input := strings.TrimSpace(cli.Input)
	if input == "" && !cli.InputOptional {
		if cfgFile == "" && strings.TrimSpace(fc.Input) == "" {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cwdAbs}
		}
		if strings.TrimSpace(fc.Input) == "" {
			return EffectiveConfig{}, &Error{Code: ErrCodeMissingInput, Path: cfgFile}
		}
	}
	if input == "" {
		input = fc.Input
	}
	return merge(cwdAbs, input, cli, fc, cfgFile)
}

func merge(cwd, input string, cli CLIArgs, fc FileConfig, cfgFile string) (EffectiveConfig, error) {
	where := cfgFile
	if where == "" {
		where = cwd
	}
	invalid := func(err error) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: where, Err: err}
	}

	// CLI 覆盖后再统一校验，保证 --provider/--cache 的值与文件值走同一套规则。
	if cli.ProviderSet {
		fc.Provider = strings.ToLower(strings.TrimSpace(cli.Provider))
		if fc.Provider == "" {
			return invalid(errors.New("provider 不能为空"))
		}
	}
	if cli.CacheSet {
		fc.Cache = strings.ToLower(strings.TrimSpace(cli.Cache))
	}
	if err := validate.Struct(fc); err != nil {
		return invalid(err)
	}

	eff := EffectiveConfig{
		Provider:    orDefault(fc.Provider, DefaultProvider),
		Concurrency: clampConcurrency(fc.Concurrency),
		ProxyURL:    strings.TrimSpace(fc.Proxy.URL),
		BaseURL:     strings.TrimSpace(fc.BaseURL),
		Cache:       orDefault(fc.Cache, DefaultCache),
		CacheDir:    absCleanFrom(cwd, orDefault(fc.CacheDir, DefaultCacheDir)),
		PriceFormat: orDefault(fc.PriceFormat, DefaultPriceFormat),
		LogLevel:    orDefault(fc.Log.Level, DefaultLogLevel),
		LogFormat:   orDefault(fc.Log.Format, DefaultLogFormat),
		ServeAddr:   orDefault(strings.TrimSpace(cli.Addr), orDefault(fc.Serve.Addr, DefaultServeAddr)),
		ConfigFile:  cfgFile,
	}

	if eff.BaseURL != "" {
		if err := checkHTTPURL("base_url", eff.BaseURL); err != nil {
			return invalid(err)
		}
	}
	if eff.ProxyURL != "" {
		if _, err := url.Parse(eff.ProxyURL); err != nil {
			return invalid(fmt.Errorf("proxy.url 无效：%w", err))
		}
	}
	if _, _, err := net.SplitHostPort(eff.ServeAddr); err != nil {
		return invalid(fmt.Errorf("serve.addr 无效：%q", eff.ServeAddr))
	}

	if strings.TrimSpace(input) != "" {
		eff.Input = absCleanFrom(cwd, input)
		out := orDefault(strings.TrimSpace(cli.Output), fc.Output)
		if out == "" {
			eff.Output = filepath.Join(filepath.Dir(eff.Input), DefaultOutputName)
		} else {
			eff.Output = absCleanFrom(cwd, out)
		}
		if eff.Output == eff.Input {
			return invalid(fmt.Errorf("output 不能与 input 相同：%q", eff.Output))
		}
	}
	return eff, nil
}

// readFileConfig 用 viper 读取 cwd 下的配置文件，并叠加 ORDERSHEET_* 环境变量。
// 返回的 cfgFile 为空表示没有配置文件（不算错误）。
func readFileConfig(cwd string) (FileConfig, string, error) {
	v := viper.New()
	v.SetConfigName(FileName)
	v.AddConfigPath(cwd)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv 只对已知 key 生效；Unmarshal 需要先登记所有 key。
	for _, k := range []string{
		"input", "output", "provider", "proxy.url", "base_url",
		"cache", "cache_dir", "price_format", "log.level", "log.format", "serve.addr",
	} {
		v.SetDefault(k, "")
	}
	v.SetDefault("concurrency", 0)

	cfgFile := ""
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return FileConfig{}, "", &Error{Code: ErrCodeInvalid, Path: filepath.Join(cwd, FileName), Err: err}
		}
	} else {
		cfgFile = v.ConfigFileUsed()
	}

	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		where := cfgFile
		if where == "" {
			where = cwd
		}
		return FileConfig{}, "", &Error{Code: ErrCodeInvalid, Path: where, Err: err}
	}
	return fc, cfgFile, nil
}

func clampConcurrency(n int) int {
	if n == 0 {
		return DefaultConcurrency
	}
	if n < 1 {
		return 1
	}
	if n > maxConcurrency {
		return maxConcurrency
	}
	return n
}

func checkHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s 无效：%q", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s 必须是 http/https：%q", field, raw)
	}
	return nil
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

// absCleanFrom 以 base 为基准把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}
