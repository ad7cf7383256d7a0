package seed

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"
	"github.com/Vortex-technology1/talko-task-manager/internal/store"
)

const sample = `
company:
  name: Acme
  webhookApiKey: k-123
users:
  - {id: boss, name: Olena, role: owner}
  - {id: a, name: Andrii}
functions:
  - name: Sales
    assigneeIds: [a]
    headId: boss
templates:
  - name: Lead processing
    steps:
      - function: Sales
        title: Qualify
        slaMinutes: 15
      - function: Sales
        title: Close
        estimatedTime: 90
        smartAssign: false
        checkpoint: true
`

func TestApplyIsRepeatable(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	f, err := Load(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	for i := 0; i < 2; i++ {
		sum, err := Apply(ctx, st, "c1", f)
		if err != nil {
			t.Fatalf("apply #%d: %v", i+1, err)
		}
		if sum != (Summary{Users: 2, Functions: 1, Templates: 1}) {
			t.Fatalf("summary = %+v", sum)
		}
	}

	fns, err := st.ListFunctions(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(fns) != 1 || fns[0].HeadID != "boss" || fns[0].AssigneeIDs[0] != "a" {
		t.Fatalf("functions = %+v", fns)
	}
	tpl, err := st.FindTemplateByName(ctx, "c1", "Lead processing")
	if err != nil {
		t.Fatal(err)
	}
	if len(tpl.Steps) != 2 || tpl.Steps[0].SLAMinutes != 15 || tpl.Steps[1].SmartAssignEnabled() || !tpl.Steps[1].Checkpoint {
		t.Fatalf("template = %+v", tpl)
	}
	c, err := st.GetCompany(ctx, "c1")
	if err != nil || c.WebhookAPIKey != "k-123" {
		t.Fatalf("company = %+v, %v", c, err)
	}
	u, err := st.GetUser(ctx, "c1", "a")
	if err != nil || u.Role != models.RoleEmployee {
		t.Fatalf("user = %+v, %v", u, err)
	}
}

func TestApplyKeepsChatLink(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	if err := st.PutUser(ctx, models.User{ID: "a", CompanyID: "c1", TelegramChatID: "201"}); err != nil {
		t.Fatal(err)
	}
	f, err := Load(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Apply(ctx, st, "c1", f); err != nil {
		t.Fatal(err)
	}
	u, _ := st.GetUser(ctx, "c1", "a")
	if u.TelegramChatID != "201" || u.Name != "Andrii" {
		t.Fatalf("user = %+v", u)
	}
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]string{
		"empty":            ``,
		"unknown key":      "functoins: []",
		"unknown function": "functions: [{name: Sales}]\ntemplates: [{name: T, steps: [{function: Ops}]}]",
		"no steps":         "templates: [{name: T}]",
		"duplicate":        "functions: [{name: Sales}, {name: Sales}]",
		"unknown assignee": "users: [{id: a}]\nfunctions: [{name: Sales, assigneeIds: [b]}]",
		"bad role":         "users: [{id: a, role: king}]",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(doc)); !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}
}
