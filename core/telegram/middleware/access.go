package middleware

import tele "gopkg.in/telebot.v4"

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	AdminID  int64
	AdminIDs []int64
	OnReject tele.HandlerFunc
}

func (o AdminOptions) configured() bool {
	return o.AdminID != 0 || len(o.AdminIDs) > 0
}

func (o AdminOptions) allows(id int64) bool {
	if o.AdminID != 0 && id == o.AdminID {
		return true
	}
	for _, admin := range o.AdminIDs {
		if id == admin {
			return true
		}
	}
	return false
}

// AdminOnlyMiddleware ensures that only allow-listed users can invoke downstream handlers.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if opts.configured() && !opts.allows(c.Sender().ID) {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
