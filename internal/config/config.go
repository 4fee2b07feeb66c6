package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ethpulse/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// EnvConfigPath 指定配置文件路径的环境变量。
	EnvConfigPath = "ETHPULSE_CONFIG"
	DefaultPath   = "configs/config.yaml"
)

// ResolvePath 优先使用显式参数，其次 ETHPULSE_CONFIG，最后默认路径。
func ResolvePath(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return DefaultPath
}

// Load 读取配置（含 include 链），补默认值后校验。
func Load(path string) (*Config, error) {
	files, err := resolveConfigIncludes(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range files {
		if err := mergeConfigFile(v, file); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	setKeys := make(keySet)
	collectSettingsKeys(v.AllSettings(), setKeys)
	cfg.applyDefaults(setKeys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch 监听配置文件变更，重新加载成功后回调 onChange；加载失败时保留旧配置。
// 只监听入口文件，include 的子文件变更不会触发。
func Watch(path string, onChange func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	v := viper.New()
	v.SetConfigFile(abs)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("watch config %s: %w", abs, err)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(abs)
		if err != nil {
			logger.Warnf("[config] reload %s failed, keeping previous config: %v", e.Name, err)
			return
		}
		logger.Infof("[config] reloaded %s (%s)", e.Name, e.Op)
		if onChange != nil {
			onChange(cfg)
		}
	})
	v.WatchConfig()
	return nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	tmp := viper.New()
	tmp.SetConfigFile(path)
	if err := tmp.ReadInConfig(); err != nil {
		return err
	}
	return v.MergeConfigMap(tmp.AllSettings())
}

// includeWalker 深度优先展开 include：被包含的文件先于包含者合并，同一文件只合并一次。
type includeWalker struct {
	visiting map[string]bool
	done     map[string]bool
	order    []string
}

func resolveConfigIncludes(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w := &includeWalker{visiting: map[string]bool{}, done: map[string]bool{}}
	if err := w.walk(abs); err != nil {
		return nil, err
	}
	return w.order, nil
}

func (w *includeWalker) walk(path string) error {
	path = filepath.Clean(path)
	switch {
	case w.visiting[path]:
		return fmt.Errorf("include cycle detected: %s", path)
	case w.done[path]:
		return nil
	}
	w.visiting[path] = true
	includes, err := readIncludes(path)
	if err != nil {
		return fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := w.walk(inc); err != nil {
			return err
		}
	}
	delete(w.visiting, path)
	w.done[path] = true
	w.order = append(w.order, path)
	return nil
}

// readIncludes accepts `include: a.yaml` as well as a list of paths.
func readIncludes(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var raw []any
	switch val := v.Get("include").(type) {
	case nil:
		return nil, nil
	case string:
		raw = []any{val}
	case []any:
		raw = val
	case []string:
		for _, s := range val {
			raw = append(raw, s)
		}
	default:
		return nil, fmt.Errorf("include must be a string or string array")
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("include only supports strings")
		}
		if str = strings.TrimSpace(str); str != "" {
			out = append(out, str)
		}
	}
	return out, nil
}

// collectSettingsKeys records every leaf key (lower-cased, dot separated) present in the files,
// so applyDefaults can tell "unset" from an explicit zero.
func collectSettingsKeys(settings map[string]any, dest keySet) {
	for k, v := range settings {
		markKeys(strings.ToLower(strings.TrimSpace(k)), v, dest)
	}
}

func markKeys(key string, node any, dest keySet) {
	if key == "" {
		return
	}
	switch val := node.(type) {
	case map[string]any:
		for k, v := range val {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				markKeys(key+"."+k, v, dest)
			}
		}
	case map[any]any:
		for k, v := range val {
			if ks, ok := k.(string); ok {
				if ks = strings.ToLower(strings.TrimSpace(ks)); ks != "" {
					markKeys(key+"."+ks, v, dest)
				}
			}
		}
	default:
		dest.mark(key)
	}
}
