package config_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/agentmatch/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.MaxMatchLimit, convey.ShouldEqual, 50)
			convey.So(cfg.ConversationRounds, convey.ShouldEqual, 6)
			convey.So(cfg.GeneratorRetries, convey.ShouldEqual, 1)
			convey.So(cfg.JobRetention(), convey.ShouldEqual, 24*time.Hour)
			convey.So(cfg.ShutdownTimeout(), convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.Location(), convey.ShouldEqual, time.UTC)
		})
	})
}
