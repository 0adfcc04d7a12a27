package play

import "github.com/trezcool/huddle/core/user"

// CanView reports whether usr may read p: admins see everything, others their team's plays,
// and players only the published ones.
func CanView(usr user.User, p Play) bool {
	if usr.IsAdmin() {
		return true
	}
	if !sameTeam(usr, p.TeamID) {
		return false
	}
	return p.IsPublished || usr.IsStaff()
}

// CanEdit reports whether usr may modify p and its frames.
func CanEdit(usr user.User, p Play) bool {
	if usr.IsAdmin() {
		return true
	}
	return usr.IsStaff() && sameTeam(usr, p.TeamID)
}

// CanViewPlaybook reports whether usr may read pb.
func CanViewPlaybook(usr user.User, pb Playbook) bool {
	return usr.IsAdmin() || sameTeam(usr, pb.TeamID)
}

func CanEditPlaybook(usr user.User, pb Playbook) bool {
	return usr.IsAdmin() || (usr.IsStaff() && sameTeam(usr, pb.TeamID))
}

// ScopeFilter restricts a play query to what usr may see.
func ScopeFilter(usr user.User, filter *QueryFilter) {
	if !usr.IsAdmin() && usr.TeamID != "" {
		filter.TeamID = usr.TeamID
	}
	if !usr.IsStaff() {
		published := true
		filter.IsPublished = &published
	}
}

func ScopePlaybookFilter(usr user.User, filter *PlaybookFilter) {
	if !usr.IsAdmin() && usr.TeamID != "" {
		filter.TeamID = usr.TeamID
	}
}

// sameTeam is true when either side has no team (single-team deployments) or both teams match.
func sameTeam(usr user.User, teamID string) bool {
	return usr.TeamID == "" || teamID == "" || usr.TeamID == teamID
}
