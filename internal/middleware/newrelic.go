package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/newrelic/go-agent/v3/newrelic"
)

// NewRelic wraps each request in a New Relic transaction and makes it
// available to handlers through the request context.
func NewRelic(app *newrelic.Application) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if app == nil {
			return c.Next()
		}

		txn := app.StartTransaction(c.Method() + " " + c.Path())
		defer txn.End()

		if req, err := adaptor.ConvertRequest(c, false); err == nil {
			txn.SetWebRequestHTTP(req)
		}
		c.SetUserContext(newrelic.NewContext(c.UserContext(), txn))

		err := c.Next()

		txn.SetName(c.Method() + " " + c.Route().Path)
		status := statusOf(c, err)
		txn.SetWebResponse(nil).WriteHeader(status)
		if status >= fiber.StatusInternalServerError && err != nil {
			txn.NoticeError(err)
		}
		return err
	}
}
