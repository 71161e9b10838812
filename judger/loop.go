package judger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/skj-judge/skj-judge/pkg/datagram"
	"github.com/skj-judge/skj-judge/pkg/diff"
	"github.com/skj-judge/skj-judge/types"
	"go.uber.org/zap"
)

// Run exchanges every task in order and stops at the first failed one. The
// final flag is sent when at least TasksAmount tasks passed. A wrong answer
// is reported in the result, only transport errors are returned.
// Cancelling ctx interrupts a pending send or receive.
func (j *Judger) Run(ctx context.Context) (*types.JudgeResult, error) {
	stop := context.AfterFunc(ctx, func() { j.conn.SetDeadline(time.Now()) })
	defer stop()

	result := &types.JudgeResult{
		Tasks: make([]types.TaskResult, 0, len(j.tasks)),
	}
	r := datagram.NewReader(j.conn)

	for i, t := range j.tasks {
		rt, err := j.runTask(r, i, t)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			return result, err
		}
		result.Tasks = append(result.Tasks, rt)
		j.observe(rt)

		if rt.Status != types.ProgressSucceeded {
			j.skip(result, i+1)
			break
		}
		result.Passed++
	}

	if result.Passed < j.amount {
		j.logger.Info("Final flag withheld", zap.Int("passed", result.Passed), zap.Int("required", j.amount))
		return result, nil
	}
	if err := j.send(strconv.FormatUint(j.flag, 10)); err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, fmt.Errorf("judger: send final flag: %w", err)
	}
	result.FlagSent = true
	j.logger.Info("Final flag sent", zap.Int("passed", result.Passed))
	return result, nil
}

func (j *Judger) runTask(r *datagram.Reader, index int, t types.Task) (types.TaskResult, error) {
	logger := j.logger.With(zap.Int("task", index), zap.Stringer("kind", t.Kind()))
	rt := types.TaskResult{
		Index: index,
		Kind:  t.Kind(),
	}
	start := time.Now()

	for _, v := range t.Given() {
		if err := j.send(v); err != nil {
			return rt, fmt.Errorf("judger: task %d: send: %w", index, err)
		}
	}
	logger.Debug("Operands sent, waiting for answer")

	answer, err := r.ReadMessage()
	switch {
	case errors.Is(err, datagram.ErrMessageTooLarge):
		logger.Error("Answer too large, treated as empty")
		rt.Oversized = true
	case err != nil:
		return rt, fmt.Errorf("judger: task %d: receive: %w", index, err)
	}
	rt.Time = time.Since(start)
	rt.Answer = string(answer)
	rt.Expected = t.Expected()

	if !types.Verify(t, answer) {
		rt.Status = types.ProgressFailed
		logger.Error("Task failed", zap.Error(diff.Compare([]byte(rt.Expected), answer)))
		return rt, nil
	}
	rt.Status = types.ProgressSucceeded
	logger.Info("Task completed", zap.Duration("time", rt.Time))
	return rt, nil
}

// skip marks every task from index on as skipped
func (j *Judger) skip(result *types.JudgeResult, from int) {
	for i := from; i < len(j.tasks); i++ {
		rt := types.TaskResult{
			Index:  i,
			Kind:   j.tasks[i].Kind(),
			Status: types.ProgressSkipped,
		}
		result.Tasks = append(result.Tasks, rt)
		j.observe(rt)
	}
	if from < len(j.tasks) {
		j.logger.Info("Remaining tasks skipped", zap.Int("count", len(j.tasks)-from))
	}
}

func (j *Judger) send(value string) error {
	_, err := j.conn.Write(datagram.Packet(value))
	return err
}

func (j *Judger) observe(rt types.TaskResult) {
	if j.observer != nil {
		j.observer(rt)
	}
}
