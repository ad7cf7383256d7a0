package notify

import "context"

// Assignee resolves to the task's assignee, if any.
func Assignee(_ context.Context, _ Directory, e Event) ([]string, error) {
	if e.Task == nil || e.Task.AssigneeID == "" {
		return []string{}, nil
	}
	return []string{e.Task.AssigneeID}, nil
}

// Managers resolves to every owner and manager of the company.
func Managers(ctx context.Context, dir Directory, e Event) ([]string, error) {
	return managersExcept(ctx, dir, e.CompanyID, "")
}

// ManagersExceptAssignee skips the manager who is also the task's assignee;
// they already get the assignee message.
func ManagersExceptAssignee(ctx context.Context, dir Directory, e Event) ([]string, error) {
	skip := ""
	if e.Task != nil {
		skip = e.Task.AssigneeID
	}
	return managersExcept(ctx, dir, e.CompanyID, skip)
}

// CompletionWatchers resolves notifyOnComplete minus whoever completed the task.
func CompletionWatchers(_ context.Context, _ Directory, e Event) ([]string, error) {
	if e.Task == nil {
		return []string{}, nil
	}
	completer := e.ActorID
	if completer == "" {
		completer = e.Task.CompletedBy
	}
	if completer == "" {
		completer = e.Task.AssigneeID
	}
	return without(e.Task.NotifyOnComplete, completer), nil
}

// ReminderWatchers resolves notifyOnReminder minus the assignee.
func ReminderWatchers(_ context.Context, _ Directory, e Event) ([]string, error) {
	if e.Task == nil {
		return []string{}, nil
	}
	return without(e.Task.NotifyOnReminder, e.Task.AssigneeID), nil
}

func managersExcept(ctx context.Context, dir Directory, companyID, skip string) ([]string, error) {
	ms, err := dir.ListManagers(ctx, companyID)
	if err != nil {
		return []string{}, err
	}
	ids := make([]string, 0, len(ms))
	for _, m := range ms {
		if m.ID != skip {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

func without(ids []string, skip string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != skip {
			out = append(out, id)
		}
	}
	return out
}
