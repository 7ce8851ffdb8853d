package model

// Outcome 批量结果中的单条记录
type Outcome interface {
	Failure() error
}

// BatchReport 按输入顺序保存的批量结果
type BatchReport[R Outcome] struct {
	ID        string
	Results   []R
	Succeeded int
	Failed    int
}

// NewBatchReport 统计成功与失败数量
func NewBatchReport[R Outcome](id string, results []R) BatchReport[R] {
	report := BatchReport[R]{ID: id, Results: results}
	for _, r := range results {
		if r.Failure() != nil {
			report.Failed++
		} else {
			report.Succeeded++
		}
	}
	return report
}

// HasFailures 是否存在失败记录
func (r BatchReport[R]) HasFailures() bool { return r.Failed > 0 }

// FailuresByKind 按错误分类计数
func (r BatchReport[R]) FailuresByKind() map[ErrorKind]int {
	out := make(map[ErrorKind]int)
	for _, res := range r.Results {
		if err := res.Failure(); err != nil {
			out[KindOf(err)]++
		}
	}
	return out
}
