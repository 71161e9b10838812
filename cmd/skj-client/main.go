// Command skj-client runs the reference client against a judge and prints
// the final flag.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/skj-judge/skj-judge/client"
	"github.com/skj-judge/skj-judge/cmd/skj-client/config"
	"github.com/skj-judge/skj-judge/problem"
	"github.com/skj-judge/skj-judge/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

func main() {
	var conf config.Config
	if err := conf.Load(); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalln("load config failed ", err)
	}

	logger := newLogger(conf.Silent)
	defer logger.Sync()

	tasks, err := problem.Generate(conf.Seed.Uint64(), conf.TasksAmount)
	if err != nil {
		logger.Fatal("Generate tasks failed", zap.Error(err))
	}

	cc := client.Config{
		TCPAddr:  conf.TCPAddr,
		UDPAddr:  conf.UDPAddr,
		InitFlag: conf.InitFlag.Uint64(),
		Tasks:    tasks,
		Logger:   logger,
	}
	if conf.WrongTask > 0 {
		cc.Answer = wrongAnswer(conf.WrongTask - 1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	flagText, err := client.New(cc).Run(ctx)
	if err != nil {
		logger.Fatal("Run failed", zap.Error(err))
	}
	fmt.Println(flagText)
}

// wrongAnswer solves every task but the one at index
func wrongAnswer(index int) func(int, types.Task, []string) string {
	return func(i int, t types.Task, given []string) string {
		answer, _ := client.Solve(t, given)
		if i == index {
			return answer + "0"
		}
		return answer
	}
}

func newLogger(silent bool) *zap.Logger {
	if silent {
		return zap.NewNop()
	}
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if term.IsTerminal(int(os.Stderr.Fd())) {
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.Level.SetLevel(zap.InfoLevel)
	logger, err := config.Build()
	if err != nil {
		log.Fatalln("init logger failed ", err)
	}
	return logger
}
