package transfer

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"mmsol/lib/model"
)

const journalKeyPrefix = "transfer_"

// Entry 日志中的一条状态变更
type Entry struct {
	Batch    string              `json:"batch"`
	Index    int                 `json:"index"`
	State    model.TransferState `json:"state"`
	From     string              `json:"from"`
	To       string              `json:"to"`
	Lamports uint64              `json:"lamports"`
	TxID     string              `json:"tx_id,omitempty"`
	Attempts int                 `json:"attempts,omitempty"`
	Error    string              `json:"error,omitempty"`
	Time     time.Time           `json:"time"`
}

func (e Entry) key() string {
	return fmt.Sprintf("%s%s_%d", journalKeyPrefix, e.Batch, e.Index)
}

// NeedsFollowUp 已签名或已提交但没有确认结果的转账需要人工核查
func (e Entry) NeedsFollowUp() bool {
	switch e.State {
	case model.StateSubmitted, model.StateUnconfirmed:
		return true
	case model.StatePending:
		return e.TxID != ""
	}
	return false
}

// Recorder 记录转账状态变更
type Recorder interface {
	Record(e Entry) error
}

// Journal 基于 gowal 的转账状态日志，写入后同步落盘
type Journal struct {
	mu  sync.Mutex
	wal *gowal.Wal
}

func OpenJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "创建日志目录 %s 失败", dir)
	}
	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "transfer_",
		SegmentThreshold: 1000,
		MaxSegments:      100,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "打开转账日志 %s 失败", dir)
	}
	return &Journal{wal: wal}, nil
}

func (j *Journal) Record(e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "序列化转账日志失败")
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	return j.wal.Write(j.wal.CurrentIndex()+1, e.key(), data)
}

// Entries 每笔转账的最新状态，按首次出现的顺序排列
func (j *Journal) Entries() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var order []string
	latest := make(map[string]Entry)
	for msg := range j.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, journalKeyPrefix) {
			continue
		}
		var e Entry
		if err := json.Unmarshal(msg.Value, &e); err != nil {
			return nil, errors.Wrapf(err, "解析转账日志 %s 失败", msg.Key)
		}
		if _, seen := latest[msg.Key]; !seen {
			order = append(order, msg.Key)
		}
		latest[msg.Key] = e
	}

	out := make([]Entry, 0, len(order))
	for _, k := range order {
		out = append(out, latest[k])
	}
	return out, nil
}

// Pending 最新状态为 submitted 或 unconfirmed 的转账
func (j *Journal) Pending() ([]Entry, error) {
	entries, err := j.Entries()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range entries {
		if e.NeedsFollowUp() {
			out = append(out, e)
		}
	}
	return out, nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.wal.Close()
}
