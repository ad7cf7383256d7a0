package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Single-table layout: pk is the company id, sk is "<kind>#<id>".
const (
	skCompany   = "company"
	kindUser    = "user#"
	kindTask    = "task#"
	kindProcess = "process#"
	kindTmpl    = "template#"
	kindFunc    = "function#"
	kindLead    = "lead#"
	kindSched   = "scheduled#"
)

type DynamoOptions struct {
	Region     string
	Table      string
	Endpoint   string
	TxAttempts int
}

// dynamoAPI is the part of the DynamoDB client the store uses.
type dynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

type DynamoStore struct {
	db         dynamoAPI
	tableName  string
	txAttempts int
}

func NewDynamoStore(ctx context.Context, opts DynamoOptions) (*DynamoStore, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-2"
	}
	if opts.Table == "" {
		return nil, fmt.Errorf("DYNAMO_TABLE is required")
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})

	return newDynamoStore(client, opts.Table, opts.TxAttempts), nil
}

func newDynamoStore(db dynamoAPI, table string, attempts int) *DynamoStore {
	if attempts <= 0 {
		attempts = DefaultTxAttempts
	}
	return &DynamoStore{db: db, tableName: table, txAttempts: attempts}
}

func str(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
func num(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}
func boolean(v bool) types.AttributeValue { return &types.AttributeValueMemberBOOL{Value: v} }

func itemKey(companyID, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": str(companyID),
		"sk": str(sk),
	}
}

func (s *DynamoStore) marshalItem(companyID, sk string, v any) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return nil, err
	}
	item["pk"] = str(companyID)
	item["sk"] = str(sk)
	return item, nil
}

func (s *DynamoStore) put(ctx context.Context, companyID, sk string, v any) error {
	item, err := s.marshalItem(companyID, sk, v)
	if err != nil {
		return err
	}
	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	return err
}

func (s *DynamoStore) get(ctx context.Context, companyID, sk string, consistent bool, out any) error {
	res, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            itemKey(companyID, sk),
		ConsistentRead: aws.Bool(consistent),
	})
	if err != nil {
		return err
	}
	if res.Item == nil {
		return ErrNotFound
	}
	return attributevalue.UnmarshalMap(res.Item, out)
}

// query returns every item of one kind inside a company partition.
func (s *DynamoStore) query(
	ctx context.Context,
	companyID, prefix, filter string,
	names map[string]string,
	values map[string]types.AttributeValue,
) ([]map[string]types.AttributeValue, error) {
	vals := map[string]types.AttributeValue{
		":pk":     str(companyID),
		":prefix": str(prefix),
	}
	for k, v := range values {
		vals[k] = v
	}
	in := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    aws.String("pk = :pk AND begins_with(sk, :prefix)"),
		ExpressionAttributeValues: vals,
	}
	if filter != "" {
		in.FilterExpression = aws.String(filter)
	}
	if len(names) > 0 {
		in.ExpressionAttributeNames = names
	}

	var items []map[string]types.AttributeValue
	p := dynamodb.NewQueryPaginator(s.db, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// scan is only used for lookups that are not scoped to one company.
func (s *DynamoStore) scan(
	ctx context.Context,
	filter string,
	names map[string]string,
	values map[string]types.AttributeValue,
) ([]map[string]types.AttributeValue, error) {
	in := &dynamodb.ScanInput{
		TableName:                 aws.String(s.tableName),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeValues: values,
	}
	if len(names) > 0 {
		in.ExpressionAttributeNames = names
	}

	var items []map[string]types.AttributeValue
	p := dynamodb.NewScanPaginator(s.db, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// update applies a conditional update. It reports false when the condition
// failed on an existing item and ErrNotFound when the item is missing.
func (s *DynamoStore) update(ctx context.Context, in *dynamodb.UpdateItemInput) (bool, error) {
	in.TableName = aws.String(s.tableName)
	in.ReturnValuesOnConditionCheckFailure = types.ReturnValuesOnConditionCheckFailureAllOld
	_, err := s.db.UpdateItem(ctx, in)
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			if cfe.Item == nil {
				return false, ErrNotFound
			}
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ----- companies -----

func (s *DynamoStore) PutCompany(ctx context.Context, c models.Company) error {
	return s.put(ctx, c.ID, skCompany, c)
}

func (s *DynamoStore) GetCompany(ctx context.Context, companyID string) (*models.Company, error) {
	var c models.Company
	if err := s.get(ctx, companyID, skCompany, false, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *DynamoStore) ListCompanies(ctx context.Context) ([]models.Company, error) {
	items, err := s.scan(ctx, "sk = :sk", nil, map[string]types.AttributeValue{
		":sk": str(skCompany),
	})
	if err != nil {
		return nil, err
	}
	var out []models.Company
	if err := attributevalue.UnmarshalListOfMaps(items, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ----- users -----

func (s *DynamoStore) PutUser(ctx context.Context, u models.User) error {
	return s.put(ctx, u.CompanyID, kindUser+u.ID, u)
}

func (s *DynamoStore) GetUser(ctx context.Context, companyID, userID string) (*models.User, error) {
	var u models.User
	if err := s.get(ctx, companyID, kindUser+userID, false, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *DynamoStore) ListUsers(ctx context.Context, companyID string) ([]models.User, error) {
	items, err := s.query(ctx, companyID, kindUser, "", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []models.User
	if err := attributevalue.UnmarshalListOfMaps(items, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DynamoStore) ListManagers(ctx context.Context, companyID string) ([]models.User, error) {
	items, err := s.query(ctx, companyID, kindUser,
		"#role IN (:owner, :manager)",
		map[string]string{"#role": "role"},
		map[string]types.AttributeValue{
			":owner":   str(models.RoleOwner),
			":manager": str(models.RoleManager),
		})
	if err != nil {
		return nil, err
	}
	var out []models.User
	if err := attributevalue.UnmarshalListOfMaps(items, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DynamoStore) findUser(ctx context.Context, attr, value string) (*models.User, error) {
	items, err := s.scan(ctx, "begins_with(sk, :u) AND #a = :v",
		map[string]string{"#a": attr},
		map[string]types.AttributeValue{
			":u": str(kindUser),
			":v": str(value),
		})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	var u models.User
	if err := attributevalue.UnmarshalMap(items[0], &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *DynamoStore) FindUserByChatID(ctx context.Context, chatID string) (*models.User, error) {
	return s.findUser(ctx, "telegram_chat_id", chatID)
}

func (s *DynamoStore) FindUserByTelegramCode(ctx context.Context, code string) (*models.User, error) {
	if code == "" {
		return nil, ErrNotFound
	}
	return s.findUser(ctx, "telegram_code", code)
}

func (s *DynamoStore) LinkTelegram(ctx context.Context, companyID, userID, chatID, telegramUserID string) error {
	ok, err := s.update(ctx, &dynamodb.UpdateItemInput{
		Key:                 itemKey(companyID, kindUser+userID),
		ConditionExpression: aws.String("attribute_exists(pk)"),
		UpdateExpression:    aws.String("SET telegram_chat_id = :c, telegram_user_id = :t REMOVE telegram_code"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": str(chatID),
			":t": str(telegramUserID),
		},
	})
	if err == nil && !ok {
		err = ErrNotFound
	}
	return err
}

// ----- functions & templates -----

func (s *DynamoStore) PutFunction(ctx context.Context, f models.Function) error {
	return s.put(ctx, f.CompanyID, kindFunc+f.ID, f)
}

func (s *DynamoStore) FindFunctionByName(ctx context.Context, companyID, name string) (*models.Function, error) {
	items, err := s.query(ctx, companyID, kindFunc, "#n = :n",
		map[string]string{"#n": "name"},
		map[string]types.AttributeValue{":n": str(name)})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	var f models.Function
	if err := attributevalue.UnmarshalMap(items[0], &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *DynamoStore) ListFunctions(ctx context.Context, companyID string) ([]models.Function, error) {
	items, err := s.query(ctx, companyID, kindFunc, "", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []models.Function
	if err := attributevalue.UnmarshalListOfMaps(items, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DynamoStore) PutTemplate(ctx context.Context, t models.ProcessTemplate) error {
	return s.put(ctx, t.CompanyID, kindTmpl+t.ID, t)
}

func (s *DynamoStore) GetTemplate(ctx context.Context, companyID, templateID string) (*models.ProcessTemplate, error) {
	var t models.ProcessTemplate
	if err := s.get(ctx, companyID, kindTmpl+templateID, false, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *DynamoStore) FindTemplateByName(ctx context.Context, companyID, name string) (*models.ProcessTemplate, error) {
	items, err := s.query(ctx, companyID, kindTmpl, "#n = :n",
		map[string]string{"#n": "name"},
		map[string]types.AttributeValue{":n": str(name)})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	var t models.ProcessTemplate
	if err := attributevalue.UnmarshalMap(items[0], &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ----- tasks -----

func (s *DynamoStore) PutTask(ctx context.Context, t models.Task) error {
	return s.put(ctx, t.CompanyID, kindTask+t.ID, t)
}

func (s *DynamoStore) CreateTask(ctx context.Context, t models.Task) (bool, error) {
	item, err := s.marshalItem(t.CompanyID, kindTask+t.ID, t)
	if err != nil {
		return false, err
	}
	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	var cfe *types.ConditionalCheckFailedException
	if errors.As(err, &cfe) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *DynamoStore) GetTask(ctx context.Context, companyID, taskID string) (*models.Task, error) {
	var t models.Task
	if err := s.get(ctx, companyID, kindTask+taskID, false, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *DynamoStore) ListTasks(ctx context.Context, companyID string, f TaskFilter) ([]models.Task, error) {
	var conds []string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}

	if len(f.Statuses) > 0 {
		names["#st"] = "status"
		ph := make([]string, 0, len(f.Statuses))
		for i, st := range f.Statuses {
			k := fmt.Sprintf(":st%d", i)
			values[k] = str(st)
			ph = append(ph, k)
		}
		conds = append(conds, "#st IN ("+strings.Join(ph, ", ")+")")
	}
	if f.Function != "" {
		names["#fn"] = "function"
		values[":fn"] = str(f.Function)
		conds = append(conds, "#fn = :fn")
	}
	if f.AssigneeID != "" {
		values[":as"] = str(f.AssigneeID)
		conds = append(conds, "assignee_id = :as")
	}
	if f.ProcessID != "" {
		values[":pid"] = str(f.ProcessID)
		conds = append(conds, "process_id = :pid")
		if f.ProcessStep != nil {
			values[":ps"] = num(int64(*f.ProcessStep))
			conds = append(conds, "process_step = :ps")
		}
	}

	items, err := s.query(ctx, companyID, kindTask, strings.Join(conds, " AND "), names, values)
	if err != nil {
		return nil, err
	}
	var out []models.Task
	if err := attributevalue.UnmarshalListOfMaps(items, &out); err != nil {
		return nil, err
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *DynamoStore) CompleteTask(ctx context.Context, companyID, taskID string, c Completion) (bool, error) {
	return s.update(ctx, &dynamodb.UpdateItemInput{
		Key:                 itemKey(companyID, kindTask+taskID),
		ConditionExpression: aws.String("attribute_exists(pk) AND #st <> :done"),
		UpdateExpression: aws.String("SET #st = :done, completed_at = :ca, completed_date = :cd, " +
			"completed_by = :cb, completion_source = :cs, completion_comment = :cc, " +
			"tracked_minutes = :tm, updated_at = :ca"),
		ExpressionAttributeNames: map[string]string{"#st": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done": str(models.StatusDone),
			":ca":   num(c.At),
			":cd":   str(c.Date),
			":cb":   str(c.By),
			":cs":   str(c.Source),
			":cc":   str(c.Comment),
			":tm":   num(int64(c.TrackedMinutes)),
		},
	})
}

func (s *DynamoStore) StartTask(ctx context.Context, companyID, taskID string, nowMs int64) (bool, error) {
	return s.update(ctx, &dynamodb.UpdateItemInput{
		Key:                      itemKey(companyID, kindTask+taskID),
		ConditionExpression:      aws.String("#st = :new"),
		UpdateExpression:         aws.String("SET #st = :progress, updated_at = :u"),
		ExpressionAttributeNames: map[string]string{"#st": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      str(models.StatusNew),
			":progress": str(models.StatusProgress),
			":u":        num(nowMs),
		},
	})
}

func (s *DynamoStore) PostponeTask(ctx context.Context, companyID, taskID string, d Deadline, nowMs int64) error {
	ok, err := s.update(ctx, &dynamodb.UpdateItemInput{
		Key:                 itemKey(companyID, kindTask+taskID),
		ConditionExpression: aws.String("attribute_exists(pk)"),
		UpdateExpression: aws.String(
			"SET deadline_date = :dd, deadline_time = :dt, deadline = :dl, overdue_notified = :f, updated_at = :u " +
				"REMOVE sent_reminders, overdue_notified_at",
		),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":dd": str(d.Date),
			":dt": str(d.Clock),
			":dl": num(d.Instant),
			":f":  boolean(false),
			":u":  num(nowMs),
		},
	})
	if err == nil && !ok {
		err = ErrNotFound
	}
	return err
}

// claimFlag flips a boolean one-shot flag from unset/false to true.
func (s *DynamoStore) claimFlag(ctx context.Context, companyID, taskID, flag string, nowMs int64) (bool, error) {
	return s.update(ctx, &dynamodb.UpdateItemInput{
		Key: itemKey(companyID, kindTask+taskID),
		ConditionExpression: aws.String(
			"attribute_exists(pk) AND (attribute_not_exists(#f) OR #f = :false)",
		),
		UpdateExpression:         aws.String("SET #f = :true, #fa = :now, updated_at = :now"),
		ExpressionAttributeNames: map[string]string{"#f": flag, "#fa": flag + "_at"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":false": boolean(false),
			":true":  boolean(true),
			":now":   num(nowMs),
		},
	})
}

func (s *DynamoStore) ClaimOverdueNotice(ctx context.Context, companyID, taskID string, nowMs int64) (bool, error) {
	return s.claimFlag(ctx, companyID, taskID, "overdue_notified", nowMs)
}

func (s *DynamoStore) ClaimEscalation(ctx context.Context, companyID, taskID string, nowMs int64) (bool, error) {
	return s.claimFlag(ctx, companyID, taskID, "escalated", nowMs)
}

func (s *DynamoStore) ClaimReminder(ctx context.Context, companyID, taskID string, offset int, nowMs int64) (bool, error) {
	off := strconv.Itoa(offset)
	return s.update(ctx, &dynamodb.UpdateItemInput{
		Key:                 itemKey(companyID, kindTask+taskID),
		ConditionExpression: aws.String("attribute_exists(pk) AND NOT contains(sent_reminders, :off)"),
		UpdateExpression:    aws.String("ADD sent_reminders :set SET updated_at = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":off": &types.AttributeValueMemberN{Value: off},
			":set": &types.AttributeValueMemberNS{Value: []string{off}},
			":now": num(nowMs),
		},
	})
}

// ----- processes -----

func (s *DynamoStore) PutProcess(ctx context.Context, p models.Process) error {
	return s.put(ctx, p.CompanyID, kindProcess+p.ID, p)
}

func (s *DynamoStore) GetProcess(ctx context.Context, companyID, processID string) (*models.Process, error) {
	var p models.Process
	if err := s.get(ctx, companyID, kindProcess+processID, true, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *DynamoStore) ListProcesses(ctx context.Context, companyID, status string) ([]models.Process, error) {
	filter := ""
	var names map[string]string
	var values map[string]types.AttributeValue
	if status != "" {
		filter = "#st = :st"
		names = map[string]string{"#st": "status"}
		values = map[string]types.AttributeValue{":st": str(status)}
	}
	items, err := s.query(ctx, companyID, kindProcess, filter, names, values)
	if err != nil {
		return nil, err
	}
	var out []models.Process
	if err := attributevalue.UnmarshalListOfMaps(items, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DynamoStore) AdvanceProcess(
	ctx context.Context,
	companyID, processID, taskID string,
	apply AdvanceFunc,
) (*models.Process, error) {
	for attempt := 0; attempt < s.txAttempts; attempt++ {
		var p models.Process
		if err := s.get(ctx, companyID, kindProcess+processID, true, &p); err != nil {
			return nil, err
		}
		prev := p.Version
		if err := apply(&p); err != nil {
			return nil, err
		}
		p.Version = prev + 1

		item, err := s.marshalItem(companyID, kindProcess+processID, p)
		if err != nil {
			return nil, err
		}

		// Only overwrite the version we read.
		versionCond := "#v = :v"
		if prev == 0 {
			versionCond = "attribute_not_exists(#v) OR #v = :v"
		}
		now := time.Now().UnixMilli()

		_, err = s.db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []types.TransactWriteItem{
				{
					Put: &types.Put{
						TableName:                 aws.String(s.tableName),
						Item:                      item,
						ConditionExpression:       aws.String(versionCond),
						ExpressionAttributeNames:  map[string]string{"#v": "version"},
						ExpressionAttributeValues: map[string]types.AttributeValue{":v": num(prev)},
					},
				},
				{
					Update: &types.Update{
						TableName:                 aws.String(s.tableName),
						Key:                       itemKey(companyID, kindTask+taskID),
						ConditionExpression:       aws.String("attribute_exists(pk)"),
						UpdateExpression:          aws.String("SET process_advanced_at = :now, updated_at = :now"),
						ExpressionAttributeValues: map[string]types.AttributeValue{":now": num(now)},
					},
				},
			},
		})
		if err == nil {
			return &p, nil
		}

		var tce *types.TransactionCanceledException
		if !errors.As(err, &tce) {
			return nil, err
		}
		if reasonCode(tce, 1) == "ConditionalCheckFailed" {
			return nil, fmt.Errorf("advance process %s: task %s: %w", processID, taskID, ErrNotFound)
		}
		// Version mismatch or a concurrent transaction: re-read and re-check.
	}
	return nil, fmt.Errorf("advance process %s after %d attempts: %w", processID, s.txAttempts, ErrConflict)
}

func reasonCode(tce *types.TransactionCanceledException, i int) string {
	if i >= len(tce.CancellationReasons) || tce.CancellationReasons[i].Code == nil {
		return ""
	}
	return *tce.CancellationReasons[i].Code
}

// ----- leads & scheduled tasks -----

func (s *DynamoStore) PutLead(ctx context.Context, l models.Lead) error {
	return s.put(ctx, l.CompanyID, kindLead+l.ID, l)
}

func (s *DynamoStore) PutScheduledTask(ctx context.Context, st models.ScheduledTask) error {
	return s.put(ctx, st.CompanyID, kindSched+st.ID, st)
}

func (s *DynamoStore) ListDueScheduledTasks(ctx context.Context, companyID string, nowMs int64) ([]models.ScheduledTask, error) {
	items, err := s.query(ctx, companyID, kindSched,
		"activate_at <= :now AND activated = :false", nil,
		map[string]types.AttributeValue{
			":now":   num(nowMs),
			":false": boolean(false),
		})
	if err != nil {
		return nil, err
	}
	var out []models.ScheduledTask
	if err := attributevalue.UnmarshalListOfMaps(items, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DynamoStore) ClaimScheduledTask(ctx context.Context, companyID, scheduledID string) (bool, error) {
	return s.update(ctx, &dynamodb.UpdateItemInput{
		Key:                 itemKey(companyID, kindSched+scheduledID),
		ConditionExpression: aws.String("activated = :false"),
		UpdateExpression:    aws.String("SET activated = :true"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":false": boolean(false),
			":true":  boolean(true),
		},
	})
}
