// Package proxy loads proxy lists and hands them out round-robin.
package proxy

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"mmsol/lib/model"
)

var schemes = []string{"http", "https", "socks5"}

// Parse 每行一个代理，忽略空行和 # 注释，返回全部无效行
func Parse(r io.Reader) ([]string, []string, error) {
	var proxies, invalid []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !model.ValidateHTTPURL(line, schemes...) {
			invalid = append(invalid, line)
			continue
		}
		proxies = append(proxies, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "读取代理列表失败")
	}
	return proxies, invalid, nil
}

// Validate 检查单个代理地址
func Validate(raw string) bool {
	return model.ValidateHTTPURL(raw, schemes...)
}

// Fetch 从 URL 下载代理列表
func Fetch(ctx context.Context, client *http.Client, url string) ([]string, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "创建代理列表请求失败")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "下载代理列表失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("下载代理列表失败: http %d", resp.StatusCode)
	}

	proxies, _, err := Parse(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if len(proxies) == 0 {
		return nil, errors.Errorf("代理列表为空: %s", model.RedactURL(url))
	}
	return proxies, nil
}

// Rotator 轮流返回代理，可并发使用
type Rotator struct {
	proxies []string
	next    atomic.Uint64
}

func NewRotator(proxies []string) *Rotator {
	return &Rotator{proxies: append([]string(nil), proxies...)}
}

// Next 没有代理时返回空字符串
func (r *Rotator) Next() string {
	if r == nil || len(r.proxies) == 0 {
		return ""
	}
	i := r.next.Add(1) - 1
	return r.proxies[i%uint64(len(r.proxies))]
}

func (r *Rotator) Len() int {
	if r == nil {
		return 0
	}
	return len(r.proxies)
}
