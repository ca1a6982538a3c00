package pipeline

import (
	"time"

	"postback-relay/internal/attribution"

	"github.com/google/uuid"
)

// SessionID reuses the matched click's session when it has one. Otherwise
// it derives a stable id from the website, client IP and user agent so
// repeat postbacks from the same source share a session.
func SessionID(websiteID, clientIP, userAgent string, match *attribution.Match) string {
	if match != nil {
		if match.LinkClick != nil && match.LinkClick.SessionID != "" {
			return match.LinkClick.SessionID
		}
		if match.RedirectClick != nil && match.RedirectClick.SessionID != "" {
			return match.RedirectClick.SessionID
		}
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(websiteID+"|"+clientIP+"|"+userAgent)).String()
}

// VisitID groups a session's events into hourly visits.
func VisitID(sessionID string, at time.Time) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(sessionID+"|"+at.UTC().Format("2006-01-02T15"))).String()
}
