package store

import (
	"context"
	"errors"
	"testing"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo records requests and answers them from canned responses.
type fakeDynamo struct {
	items   map[string]map[string]types.AttributeValue
	puts    []*dynamodb.PutItemInput
	updates []*dynamodb.UpdateItemInput
	txs     []*dynamodb.TransactWriteItemsInput

	putErr    error
	updateErr error
	// txErrs are returned by successive TransactWriteItems calls; nil
	// once exhausted.
	txErrs []error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	pk := in.Key["pk"].(*types.AttributeValueMemberS).Value
	sk := in.Key["sk"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[pk+"|"+sk]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeDynamo) Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return &dynamodb.QueryOutput{}, nil
}

func (f *fakeDynamo) Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return &dynamodb.ScanOutput{}, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.txs = append(f.txs, in)
	if len(f.txErrs) == 0 {
		return &dynamodb.TransactWriteItemsOutput{}, nil
	}
	err := f.txErrs[0]
	f.txErrs = f.txErrs[1:]
	return nil, err
}

func (f *fakeDynamo) putProcess(t *testing.T, p models.Process) {
	t.Helper()
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		t.Fatal(err)
	}
	f.items[p.CompanyID+"|"+kindProcess+p.ID] = item
}

func canceled(codes ...string) error {
	reasons := make([]types.CancellationReason, len(codes))
	for i, c := range codes {
		reasons[i] = types.CancellationReason{Code: aws.String(c)}
	}
	return &types.TransactionCanceledException{CancellationReasons: reasons}
}

func TestDynamoUpdateMapsConditionFailures(t *testing.T) {
	ctx := context.Background()
	db := newFakeDynamo()
	s := newDynamoStore(db, "tasks", 0)

	if ok, err := s.ClaimOverdueNotice(ctx, "c1", "t1", 10); err != nil || !ok {
		t.Fatalf("successful claim = %v, %v", ok, err)
	}

	// the item exists but the flag is already set
	db.updateErr = &types.ConditionalCheckFailedException{Item: map[string]types.AttributeValue{"pk": str("c1")}}
	if ok, err := s.ClaimOverdueNotice(ctx, "c1", "t1", 10); err != nil || ok {
		t.Fatalf("already claimed = %v, %v", ok, err)
	}

	// no old item: the task does not exist
	db.updateErr = &types.ConditionalCheckFailedException{}
	if _, err := s.ClaimEscalation(ctx, "c1", "ghost", 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing task: %v", err)
	}

	boom := errors.New("throttled")
	db.updateErr = boom
	if _, err := s.ClaimEscalation(ctx, "c1", "t1", 10); !errors.Is(err, boom) {
		t.Fatalf("other error: %v", err)
	}
}

func TestDynamoClaimFlagExpression(t *testing.T) {
	db := newFakeDynamo()
	s := newDynamoStore(db, "tasks", 0)
	if _, err := s.ClaimEscalation(context.Background(), "c1", "t1", 42); err != nil {
		t.Fatal(err)
	}
	in := db.updates[0]
	if aws.ToString(in.TableName) != "tasks" || in.ReturnValuesOnConditionCheckFailure != types.ReturnValuesOnConditionCheckFailureAllOld {
		t.Fatalf("input = %+v", in)
	}
	if got := aws.ToString(in.ConditionExpression); got != "attribute_exists(pk) AND (attribute_not_exists(#f) OR #f = :false)" {
		t.Fatalf("condition = %q", got)
	}
	if in.ExpressionAttributeNames["#f"] != "escalated" || in.ExpressionAttributeNames["#fa"] != "escalated_at" {
		t.Fatalf("names = %v", in.ExpressionAttributeNames)
	}
	if sk := in.Key["sk"].(*types.AttributeValueMemberS).Value; sk != "task#t1" {
		t.Fatalf("sk = %q", sk)
	}
	if now := in.ExpressionAttributeValues[":now"].(*types.AttributeValueMemberN).Value; now != "42" {
		t.Fatalf(":now = %q", now)
	}
}

func TestDynamoClaimReminderUsesNumberSet(t *testing.T) {
	db := newFakeDynamo()
	s := newDynamoStore(db, "tasks", 0)
	if _, err := s.ClaimReminder(context.Background(), "c1", "t1", 15, 1); err != nil {
		t.Fatal(err)
	}
	in := db.updates[0]
	if got := aws.ToString(in.ConditionExpression); got != "attribute_exists(pk) AND NOT contains(sent_reminders, :off)" {
		t.Fatalf("condition = %q", got)
	}
	if got := aws.ToString(in.UpdateExpression); got != "ADD sent_reminders :set SET updated_at = :now" {
		t.Fatalf("update = %q", got)
	}
	set, ok := in.ExpressionAttributeValues[":set"].(*types.AttributeValueMemberNS)
	if !ok || len(set.Value) != 1 || set.Value[0] != "15" {
		t.Fatalf(":set = %#v", in.ExpressionAttributeValues[":set"])
	}
	if off := in.ExpressionAttributeValues[":off"].(*types.AttributeValueMemberN).Value; off != "15" {
		t.Fatalf(":off = %q", off)
	}
}

func TestDynamoCreateTaskIsConditional(t *testing.T) {
	ctx := context.Background()
	db := newFakeDynamo()
	s := newDynamoStore(db, "tasks", 0)
	task := models.Task{ID: "t1", CompanyID: "c1", Status: models.StatusNew}

	if ok, err := s.CreateTask(ctx, task); err != nil || !ok {
		t.Fatalf("create = %v, %v", ok, err)
	}
	if got := aws.ToString(db.puts[0].ConditionExpression); got != "attribute_not_exists(pk)" {
		t.Fatalf("condition = %q", got)
	}
	db.putErr = &types.ConditionalCheckFailedException{}
	if ok, err := s.CreateTask(ctx, task); err != nil || ok {
		t.Fatalf("existing task = %v, %v", ok, err)
	}
}

func TestDynamoAdvanceRetriesVersionConflict(t *testing.T) {
	ctx := context.Background()
	db := newFakeDynamo()
	db.putProcess(t, models.Process{ID: "p1", CompanyID: "c1", Status: models.ProcessActive, Version: 3})
	db.txErrs = []error{canceled("ConditionalCheckFailed", "None")}
	s := newDynamoStore(db, "tasks", 5)

	applied := 0
	p, err := s.AdvanceProcess(ctx, "c1", "p1", "t1", func(p *models.Process) error {
		applied++
		p.CurrentStep++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(db.txs) != 2 || applied != 2 {
		t.Fatalf("transactions = %d, applies = %d, want 2 and 2", len(db.txs), applied)
	}
	if p.Version != 4 || p.CurrentStep != 1 {
		t.Fatalf("process = %+v", p)
	}

	put := db.txs[1].TransactItems[0].Put
	if got := aws.ToString(put.ConditionExpression); got != "#v = :v" {
		t.Fatalf("version condition = %q", got)
	}
	if v := put.ExpressionAttributeValues[":v"].(*types.AttributeValueMemberN).Value; v != "3" {
		t.Fatalf(":v = %q, want the version read", v)
	}
	stamp := db.txs[1].TransactItems[1].Update
	if sk := stamp.Key["sk"].(*types.AttributeValueMemberS).Value; sk != "task#t1" {
		t.Fatalf("stamped %q", sk)
	}
	if got := aws.ToString(stamp.UpdateExpression); got != "SET process_advanced_at = :now, updated_at = :now" {
		t.Fatalf("stamp = %q", got)
	}
}

func TestDynamoAdvanceFirstWriteAcceptsMissingVersion(t *testing.T) {
	db := newFakeDynamo()
	db.putProcess(t, models.Process{ID: "p1", CompanyID: "c1", Status: models.ProcessActive})
	s := newDynamoStore(db, "tasks", 5)
	if _, err := s.AdvanceProcess(context.Background(), "c1", "p1", "t1", func(*models.Process) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if got := aws.ToString(db.txs[0].TransactItems[0].Put.ConditionExpression); got != "attribute_not_exists(#v) OR #v = :v" {
		t.Fatalf("condition = %q", got)
	}
}

func TestDynamoAdvanceGivesUpWithConflict(t *testing.T) {
	db := newFakeDynamo()
	db.putProcess(t, models.Process{ID: "p1", CompanyID: "c1", Status: models.ProcessActive, Version: 1})
	for i := 0; i < 3; i++ {
		db.txErrs = append(db.txErrs, canceled("ConditionalCheckFailed", "None"))
	}
	s := newDynamoStore(db, "tasks", 3)

	_, err := s.AdvanceProcess(context.Background(), "c1", "p1", "t1", func(*models.Process) error { return nil })
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if len(db.txs) != 3 {
		t.Fatalf("transactions = %d, want 3", len(db.txs))
	}
}

func TestDynamoAdvanceMissingTask(t *testing.T) {
	db := newFakeDynamo()
	db.putProcess(t, models.Process{ID: "p1", CompanyID: "c1", Status: models.ProcessActive, Version: 1})
	db.txErrs = []error{canceled("None", "ConditionalCheckFailed")}
	s := newDynamoStore(db, "tasks", 3)

	_, err := s.AdvanceProcess(context.Background(), "c1", "p1", "ghost", func(*models.Process) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(db.txs) != 1 {
		t.Fatalf("missing task was retried: %d transactions", len(db.txs))
	}
}

func TestDynamoAdvancePreconditionWritesNothing(t *testing.T) {
	ctx := context.Background()
	db := newFakeDynamo()
	db.putProcess(t, models.Process{ID: "p1", CompanyID: "c1", Status: models.ProcessCompleted})
	s := newDynamoStore(db, "tasks", 3)

	_, err := s.AdvanceProcess(ctx, "c1", "p1", "t1", func(*models.Process) error { return ErrPrecondition })
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("err = %v", err)
	}
	if len(db.txs) != 0 {
		t.Fatal("aborted advance reached the table")
	}
	if _, err := s.AdvanceProcess(ctx, "c1", "nope", "t1", func(*models.Process) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing process: %v", err)
	}
}
