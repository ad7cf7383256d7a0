package tasks

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"
)

// Quick is a task parsed from a one-line chat message such as
// "Report @Olena by 25.02 !!!" or "Check stock today at 14:00".
type Quick struct {
	Title        string
	Mention      string
	Priority     string
	DeadlineDate string
	DeadlineTime string
}

var (
	botMentionRE = regexp.MustCompile(`(?i)@\w+bot\b`)
	mentionRE    = regexp.MustCompile(`@([\p{L}_]+)`)
	fullDateRE   = regexp.MustCompile(`(?i)\bby\s+(\d{1,2})\.(\d{1,2})\.(\d{4})`)
	shortDateRE  = regexp.MustCompile(`(?i)\bby\s+(\d{1,2})\.(\d{1,2})`)
	dayAfterRE   = regexp.MustCompile(`(?i)\bday after tomorrow\b`)
	tomorrowRE   = regexp.MustCompile(`(?i)\btomorrow\b`)
	todayRE      = regexp.MustCompile(`(?i)\btoday\b`)
	clockRE      = regexp.MustCompile(`(?i)\bat\s*(\d{1,2}):(\d{2})\b`)
	spacesRE     = regexp.MustCompile(`\s+`)
)

// ParseQuick extracts assignee mention, deadline and priority markers from
// text. Dates are resolved against now in loc; the time defaults to 18:00.
func ParseQuick(text string, now time.Time, loc *time.Location) Quick {
	q := Quick{Priority: models.PriorityMedium, DeadlineTime: models.DefaultDeadlineTime}
	msg := strings.TrimSpace(botMentionRE.ReplaceAllString(text, ""))

	if m := mentionRE.FindStringSubmatch(msg); m != nil {
		q.Mention = m[1]
		msg = strings.Replace(msg, m[0], "", 1)
	}

	today := now.In(loc)
	switch {
	case fullDateRE.MatchString(msg):
		m := fullDateRE.FindStringSubmatch(msg)
		q.DeadlineDate = fmt.Sprintf("%s-%s-%s", m[3], pad2(m[2]), pad2(m[1]))
		msg = strings.Replace(msg, m[0], "", 1)
	case shortDateRE.MatchString(msg):
		m := shortDateRE.FindStringSubmatch(msg)
		q.DeadlineDate = fmt.Sprintf("%d-%s-%s", today.Year(), pad2(m[2]), pad2(m[1]))
		msg = strings.Replace(msg, m[0], "", 1)
	case dayAfterRE.MatchString(msg):
		q.DeadlineDate = today.AddDate(0, 0, 2).Format(models.DateLayout)
		msg = dayAfterRE.ReplaceAllString(msg, "")
	case tomorrowRE.MatchString(msg):
		q.DeadlineDate = today.AddDate(0, 0, 1).Format(models.DateLayout)
		msg = tomorrowRE.ReplaceAllString(msg, "")
	case todayRE.MatchString(msg):
		q.DeadlineDate = today.Format(models.DateLayout)
		msg = todayRE.ReplaceAllString(msg, "")
	}

	if strings.Contains(msg, "!!!") {
		q.Priority = models.PriorityHigh
		msg = strings.ReplaceAll(msg, "!!!", "")
	} else if strings.Contains(msg, "!") {
		q.Priority = models.PriorityLow
		msg = strings.ReplaceAll(msg, "!", "")
	}

	if m := clockRE.FindStringSubmatch(msg); m != nil {
		if h, _ := strconv.Atoi(m[1]); h < 24 {
			q.DeadlineTime = pad2(m[1]) + ":" + m[2]
			msg = strings.Replace(msg, m[0], "", 1)
		}
	}

	q.Title = strings.TrimSpace(spacesRE.ReplaceAllString(msg, " "))
	return q
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// MatchUser resolves a mention to a user: an exact (case-insensitive) name
// wins, otherwise the last user whose name contains the mention or whose
// first name is contained in it.
func MatchUser(users []models.User, mention string) (models.User, bool) {
	low := strings.ToLower(mention)
	if low == "" {
		return models.User{}, false
	}
	var best models.User
	found := false
	for _, u := range users {
		name := strings.ToLower(u.Name)
		if name == "" {
			continue
		}
		if name == low {
			return u, true
		}
		first := strings.Fields(name)[0]
		if strings.Contains(name, low) || strings.Contains(low, first) {
			best, found = u, true
		}
	}
	return best, found
}
