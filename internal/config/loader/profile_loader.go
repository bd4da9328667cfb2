package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"quantlab/internal/logger"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// StrategyProfile 把一组策略参数绑定为可复用的预设，
// 回测请求通过 profile 名引用，避免每次提交完整参数。
type StrategyProfile struct {
	Name        string         `yaml:"-"`
	Strategy    string         `yaml:"strategy"`
	Params      map[string]int `yaml:"params"`
	Interval    string         `yaml:"interval"`
	Description string         `yaml:"description"`
	Default     bool           `yaml:"default"`
}

type profilesFile struct {
	Profiles map[string]StrategyProfile `yaml:"profiles"`
}

// Registry 管理 profile 预设，支持文件变更热加载。
type Registry struct {
	path string

	mu          sync.RWMutex
	profiles    map[string]StrategyProfile
	defaultName string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// LoadRegistry 解析 profile 文件。文件缺失不算错误（返回空注册表），
// 回测请求该情况下必须携带完整策略参数。
func LoadRegistry(path string) (*Registry, error) {
	r := &Registry{path: path, profiles: make(map[string]StrategyProfile)}
	if err := r.reload(); err != nil {
		if os.IsNotExist(err) {
			logger.Warnf("[profile] %s 不存在，profile 注册表为空", path)
			return r, nil
		}
		return nil, err
	}
	return r, nil
}

func (r *Registry) reload() error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return err
	}
	var file profilesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("解析 profile 文件失败 (%s): %w", r.path, err)
	}
	profiles := make(map[string]StrategyProfile, len(file.Profiles))
	defaultName := ""
	for name, p := range file.Profiles {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		p.Name = key
		profiles[key] = p
		if p.Default && defaultName == "" {
			defaultName = key
		}
	}
	r.mu.Lock()
	r.profiles = profiles
	r.defaultName = defaultName
	r.mu.Unlock()
	logger.Infof("[profile] 已加载 %d 个策略 profile（default=%s）", len(profiles), defaultName)
	return nil
}

// Lookup 按名称取 profile；name 为空时返回默认 profile。
func (r *Registry) Lookup(name string) (StrategyProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = r.defaultName
	}
	p, ok := r.profiles[key]
	return p, ok
}

// Names 返回所有 profile 名（排序后）。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Watch 监听 profile 文件变更并热加载。Close 前持续生效。
func (r *Registry) Watch() error {
	if r.watcher != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		_ = watcher.Close()
		return err
	}
	r.watcher = watcher
	r.done = make(chan struct{})
	go func() {
		for {
			select {
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != filepath.Clean(r.path) {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.reload(); err != nil {
					logger.Warnf("[profile] 热加载失败: %v", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("[profile] watcher 错误: %v", err)
			case <-r.done:
				return
			}
		}
	}()
	return nil
}

func (r *Registry) Close() error {
	if r.done != nil {
		close(r.done)
		r.done = nil
	}
	if r.watcher != nil {
		err := r.watcher.Close()
		r.watcher = nil
		return err
	}
	return nil
}
