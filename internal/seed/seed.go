// Package seed loads a company's functions, process templates and users from
// a YAML file and writes them to the store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"
	"github.com/Vortex-technology1/talko-task-manager/internal/store"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("seed: invalid file")

type Company struct {
	Name                 string `yaml:"name"`
	WebhookAPIKey        string `yaml:"webhookApiKey"`
	DailyReportDisabled  bool   `yaml:"dailyReportDisabled"`
	WeeklyReportDisabled bool   `yaml:"weeklyReportDisabled"`
	PersonalDailyOff     bool   `yaml:"personalDailyOff"`
}

type User struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Email        string `yaml:"email"`
	Role         string `yaml:"role"`
	TelegramCode string `yaml:"telegramCode"`
}

// File is the on-disk layout:
//
//	company: {name: Acme, webhookApiKey: k}
//	users: [{id: u1, name: Olena, role: owner}]
//	functions: [{name: Sales, assigneeIds: [u1]}]
//	templates: [{name: Lead processing, steps: [{function: Sales, title: Qualify, slaMinutes: 15}]}]
type File struct {
	Company   *Company                 `yaml:"company"`
	Users     []User                   `yaml:"users"`
	Functions []models.Function        `yaml:"functions"`
	Templates []models.ProcessTemplate `yaml:"templates"`
}

type Summary struct {
	Users     int
	Functions int
	Templates int
}

// Load decodes and validates a seed file. Unknown keys are rejected.
func Load(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty", ErrInvalid)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	users := map[string]bool{}
	for i, u := range f.Users {
		if u.ID == "" {
			return fmt.Errorf("%w: users[%d] has no id", ErrInvalid, i)
		}
		switch u.Role {
		case "", models.RoleOwner, models.RoleManager, models.RoleEmployee:
		default:
			return fmt.Errorf("%w: user %s has unknown role %q", ErrInvalid, u.ID, u.Role)
		}
		users[u.ID] = true
	}

	functions := map[string]bool{}
	for i, fn := range f.Functions {
		name := strings.TrimSpace(fn.Name)
		if name == "" {
			return fmt.Errorf("%w: functions[%d] has no name", ErrInvalid, i)
		}
		if functions[name] {
			return fmt.Errorf("%w: function %q declared twice", ErrInvalid, name)
		}
		functions[name] = true
		if len(users) == 0 {
			continue
		}
		for _, id := range fn.AssigneeIDs {
			if !users[id] {
				return fmt.Errorf("%w: function %q references unknown user %q", ErrInvalid, name, id)
			}
		}
	}

	for i, t := range f.Templates {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("%w: templates[%d] has no name", ErrInvalid, i)
		}
		if len(t.Steps) == 0 {
			return fmt.Errorf("%w: template %q has no steps", ErrInvalid, t.Name)
		}
		for j, s := range t.Steps {
			if s.Function == "" {
				return fmt.Errorf("%w: template %q step %d has no function", ErrInvalid, t.Name, j+1)
			}
			if len(functions) > 0 && !functions[s.Function] {
				return fmt.Errorf("%w: template %q step %d uses unknown function %q", ErrInvalid, t.Name, j+1, s.Function)
			}
			if s.SLAMinutes < 0 || s.EstimatedTime < 0 {
				return fmt.Errorf("%w: template %q step %d has a negative duration", ErrInvalid, t.Name, j+1)
			}
		}
	}
	return nil
}

// stableID derives an id from the company and name so re-applying a file
// updates records instead of duplicating them.
func stableID(companyID, kind, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(companyID+"/"+kind+"/"+name)).String()
}

// Apply writes f into companyID. Existing records with the same ids are
// replaced.
func Apply(ctx context.Context, st store.Store, companyID string, f *File) (Summary, error) {
	var sum Summary
	if companyID == "" {
		return sum, fmt.Errorf("%w: company id is required", ErrInvalid)
	}
	if f.Company != nil {
		if err := st.PutCompany(ctx, models.Company{
			ID:                   companyID,
			Name:                 f.Company.Name,
			WebhookAPIKey:        f.Company.WebhookAPIKey,
			DailyReportDisabled:  f.Company.DailyReportDisabled,
			WeeklyReportDisabled: f.Company.WeeklyReportDisabled,
			PersonalDailyOff:     f.Company.PersonalDailyOff,
		}); err != nil {
			return sum, fmt.Errorf("put company: %w", err)
		}
	}

	for _, u := range f.Users {
		role := u.Role
		if role == "" {
			role = models.RoleEmployee
		}
		user := models.User{ID: u.ID, CompanyID: companyID, Name: u.Name, Email: u.Email, Role: role, TelegramCode: u.TelegramCode}
		if prev, err := st.GetUser(ctx, companyID, u.ID); err == nil {
			// keep an existing chat link
			user.TelegramChatID = prev.TelegramChatID
			user.TelegramUserID = prev.TelegramUserID
		} else if !errors.Is(err, store.ErrNotFound) {
			return sum, fmt.Errorf("get user %s: %w", u.ID, err)
		}
		if err := st.PutUser(ctx, user); err != nil {
			return sum, fmt.Errorf("put user %s: %w", u.ID, err)
		}
		sum.Users++
	}

	for _, fn := range f.Functions {
		fn.Name = strings.TrimSpace(fn.Name)
		fn.CompanyID = companyID
		if fn.ID == "" {
			fn.ID = stableID(companyID, "function", fn.Name)
		}
		if err := st.PutFunction(ctx, fn); err != nil {
			return sum, fmt.Errorf("put function %q: %w", fn.Name, err)
		}
		sum.Functions++
	}

	for _, t := range f.Templates {
		t.CompanyID = companyID
		if t.ID == "" {
			t.ID = stableID(companyID, "template", t.Name)
		}
		if err := st.PutTemplate(ctx, t); err != nil {
			return sum, fmt.Errorf("put template %q: %w", t.Name, err)
		}
		sum.Templates++
	}
	return sum, nil
}
