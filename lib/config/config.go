// Package config loads the YAML documents used by the balances and
// transfer-sol commands. Every problem found is reported at once in a
// *model.ConfigError and no network I/O happens here.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"mmsol/lib/model"
	"mmsol/lib/proxy"
)

const (
	DefaultConcurrency = 5
	DefaultTimeout     = 10 * time.Second
)

// Common 两类配置共有的节点和代理设置
type Common struct {
	Nodes       []model.Endpoint
	Proxies     []string
	ProxiesURL  string
	Concurrency int
	Timeout     time.Duration
}

type commonTmp struct {
	Nodes       []string `yaml:"nodes"`
	Proxies     []string `yaml:"proxies"`
	ProxiesURL  string   `yaml:"proxies_url"`
	Concurrency int      `yaml:"concurrency"`
	Timeout     string   `yaml:"timeout"`
}

func (c commonTmp) build(cerr *model.ConfigError) Common {
	out := Common{ProxiesURL: strings.TrimSpace(c.ProxiesURL), Concurrency: c.Concurrency}

	if len(c.Nodes) == 0 {
		cerr.Add("nodes: 至少需要一个 RPC 节点")
	}
	for i, raw := range c.Nodes {
		u := strings.TrimSpace(raw)
		if !model.ValidateHTTPURL(u) {
			cerr.Add("nodes[%d]: 无效的节点地址 %q", i, raw)
			continue
		}
		out.Nodes = append(out.Nodes, model.Endpoint{URL: u})
	}

	for i, raw := range c.Proxies {
		p := strings.TrimSpace(raw)
		if !proxy.Validate(p) {
			cerr.Add("proxies[%d]: 无效的代理地址 %q", i, model.RedactURL(raw))
			continue
		}
		out.Proxies = append(out.Proxies, p)
	}
	if out.ProxiesURL != "" && !model.ValidateHTTPURL(out.ProxiesURL) {
		cerr.Add("proxies_url: 无效的地址 %q", out.ProxiesURL)
	}

	switch {
	case c.Concurrency < 0:
		cerr.Add("concurrency: 不能为负数: %d", c.Concurrency)
	case c.Concurrency == 0:
		out.Concurrency = DefaultConcurrency
	}
	out.Timeout = parseDuration(cerr, "timeout", c.Timeout, DefaultTimeout)
	return out
}

func parseDuration(cerr *model.ConfigError, field, raw string, def time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		cerr.Add("%s: 无效的时长 %q (示例: 10s, 500ms)", field, raw)
		return def
	}
	if d < 0 {
		cerr.Add("%s: 不能为负数: %s", field, raw)
		return def
	}
	return d
}

// decode 把 yaml 类型错误逐条并入 ConfigError，语法错误直接返回
func decode(data []byte, out any, cerr *model.ConfigError) error {
	err := yaml.Unmarshal(data, out)
	if err == nil {
		return nil
	}
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		for _, e := range typeErr.Errors {
			cerr.Add("%s", e)
		}
		return nil
	}
	cerr.Add("yaml 格式错误: %v", err)
	return cerr
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		cerr := &model.ConfigError{Source: path}
		cerr.Add("无法读取配置文件: %v", err)
		return nil, cerr
	}
	return data, nil
}
