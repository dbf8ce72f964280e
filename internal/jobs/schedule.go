package jobs

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"xepelin-blog-scraper/pkg/logger"
)

// Schedule submits req every time spec fires. Specs accept the standard
// five fields, descriptors like "@daily" and a CRON_TZ= prefix. The caller
// stops the returned cron.
func (r *Runner) Schedule(spec string, req Request) (*cron.Cron, error) {
	if err := req.Validate(r.d.Catalog); err != nil {
		return nil, fmt.Errorf("scheduled request: %w", err)
	}

	c := cron.New(cron.WithLogger(cronLogger{log: r.d.Log}))
	_, err := c.AddFunc(spec, func() {
		id, err := r.Submit(req)
		if err != nil {
			r.d.Log.Error("scheduled job rejected", "mode", req.Mode(), "error", err)
			return
		}
		r.d.Log.Info("scheduled job submitted", "job", id, "mode", req.Mode())
	})
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}

type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
