package api_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/agentmatch/internal/adapters/http/api"
	"github.com/okian/agentmatch/internal/domain/dispatch"
	"github.com/okian/agentmatch/internal/domain/model"
)

func TestErrors(t *testing.T) {
	Convey("Given a wrapped domain error", t, func() {
		err := api.Wrap("api.test", fmt.Errorf("reserve: %w", dispatch.ErrQuotaExhausted))

		Convey("Then it keeps the chain and the op", func() {
			So(errors.Is(err, dispatch.ErrQuotaExhausted), ShouldBeTrue)
			So(err.Error(), ShouldStartWith, "api.test: ")
			So(api.KindOf(err), ShouldEqual, api.KindQuotaExhausted)
			So(api.KindOf(err).Status(), ShouldEqual, http.StatusTooManyRequests)
		})
	})

	Convey("Given an explicit kind", t, func() {
		err := api.WrapKind("api.test", api.KindNotReady, errors.New("later"))

		Convey("Then the kind overrides classification", func() {
			So(api.KindOf(err), ShouldEqual, api.KindNotReady)
			So(api.KindOf(err).Status(), ShouldEqual, http.StatusConflict)
		})
	})

	Convey("Given untagged errors", t, func() {
		So(api.KindOf(model.ErrNotFound), ShouldEqual, api.KindNotFound)
		So(api.KindOf(api.NewKind("op", api.ErrUnauthenticated)), ShouldEqual, api.KindUnauthenticated)
		So(api.KindOf(errors.New("boom")).Status(), ShouldEqual, http.StatusInternalServerError)
		So(api.Wrap("op", nil), ShouldBeNil)
	})
}
