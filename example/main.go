// Command example 以代码方式组装代理：GET 请求镜像到 sandbox，sandbox 副本带 X-Kage-Sandbox 标记，
// 每个请求结束后打印各 backend 的状态码。
package main

import (
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/schatten/schatten/shadow"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	srv, err := shadow.New("localhost", 1234,
		shadow.NewBackend("production", "localhost", 3000),
		shadow.WithLogger(logger),
	)
	if err != nil {
		logger.WithError(err).Fatal("build proxy")
	}

	must(logger, srv.AddBackend(shadow.NewBackend("sandbox", "localhost", 3001)))
	must(logger, srv.OnSelectBackends(shadow.SelectionFunc(selectBackends)))
	must(logger, srv.OnMungeHeaders(shadow.HeaderMungeFunc(mungeHeaders)))
	must(logger, srv.OnServerFinished(shadow.CompletionFunc(func(results map[string]shadow.Outcome, participants []shadow.Backend) {
		statuses := logrus.Fields{}
		for _, p := range participants {
			outcome := results[p.Name]
			if outcome.Failed() {
				statuses[p.Name] = outcome.Err.Error()
				continue
			}
			statuses[p.Name] = outcome.Status
		}
		logger.WithFields(statuses).Info("backends_finished")
	})))

	if err := srv.Run(); err != nil {
		logger.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}

func selectBackends(method string) []string {
	if method == http.MethodGet {
		return []string{"sandbox"}
	}
	return nil
}

func mungeHeaders(header http.Header, target shadow.Backend) {
	if target.Name == "sandbox" {
		header.Set("X-Kage-Sandbox", "1")
	}
}

func must(logger *logrus.Logger, err error) {
	if err != nil {
		logger.WithError(err).Fatal("configure proxy")
	}
}
