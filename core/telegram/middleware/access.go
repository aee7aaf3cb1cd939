package middleware

import tele "gopkg.in/telebot.v4"

// RoleOptions defines privileged user sets for role checks.
type RoleOptions struct {
	AdminIDs []int64
	TeamIDs  []int64
	OnReject tele.HandlerFunc
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user id belongs to the admin set.
func (o RoleOptions) IsAdmin(id int64) bool {
	return containsID(o.AdminIDs, id)
}

// IsTeam reports whether the user id belongs to the team or admin set.
func (o RoleOptions) IsTeam(id int64) bool {
	return containsID(o.TeamIDs, id) || o.IsAdmin(id)
}

// AdminOnlyMiddleware ensures that only admin users can invoke downstream handlers.
func AdminOnlyMiddleware(opts RoleOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if len(opts.AdminIDs) > 0 && !opts.IsAdmin(c.Sender().ID) {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}

// TeamOnlyMiddleware ensures that only team or admin users can invoke downstream handlers.
func TeamOnlyMiddleware(opts RoleOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if !opts.IsTeam(c.Sender().ID) {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
