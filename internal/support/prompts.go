package support

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"genaiops/internal/objstore"
)

const (
	TemplateFallback = "fallback"
	LatestVersion    = "latest"
)

var ErrPromptStoreDisabled = errors.New("prompt bucket or table not configured")

//go:embed templates.yaml
var builtinYAML []byte

type Template struct {
	Name       string   `json:"name"`
	Template   string   `json:"template"`
	Parameters []string `json:"parameters"`
}

// Format substitutes {param} for each declared parameter only.
func (t Template) Format(params map[string]string) string {
	out := t.Template
	for _, p := range t.Parameters {
		out = strings.ReplaceAll(out, "{"+p+"}", params[p])
	}
	return out
}

type builtinTemplate struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Listed     bool     `yaml:"listed"`
	Parameters []string `yaml:"parameters"`
	Body       string   `yaml:"body"`
}

type builtinSet struct {
	Persona   string            `yaml:"persona"`
	Templates []builtinTemplate `yaml:"templates"`
}

var builtins = mustLoadBuiltins(builtinYAML)

func mustLoadBuiltins(raw []byte) builtinSet {
	var s builtinSet
	if err := yaml.Unmarshal(raw, &s); err != nil {
		panic(fmt.Sprintf("parse built-in templates: %v", err))
	}
	return s
}

// Persona is the system framing shared by every built-in template.
func Persona() string { return builtins.Persona }

// BuiltinTemplate returns the named template, general_support when the id
// is unknown.
func BuiltinTemplate(id string) Template {
	var general Template
	for _, b := range builtins.Templates {
		t := Template{Name: b.Name, Template: builtins.Persona + "\n\n" + b.Body, Parameters: b.Parameters}
		if b.ID == id {
			return t
		}
		if b.ID == IntentGeneral {
			general = t
		}
	}
	return general
}

type PromptAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// TemplateRecord is the DynamoDB index row; the body lives in S3 at S3Key.
type TemplateRecord struct {
	TemplateID    string         `dynamodbav:"template_id" json:"template_id"`
	Version       string         `dynamodbav:"version" json:"version"`
	S3Key         string         `dynamodbav:"s3_key" json:"s3_key,omitempty"`
	ActualVersion string         `dynamodbav:"actual_version,omitempty" json:"actual_version,omitempty"`
	CreatedAt     string         `dynamodbav:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt     string         `dynamodbav:"updated_at,omitempty" json:"updated_at,omitempty"`
	Metadata      map[string]any `dynamodbav:"metadata,omitempty" json:"metadata,omitempty"`
	Name          string         `dynamodbav:"-" json:"name,omitempty"`
	Source        string         `dynamodbav:"-" json:"source,omitempty"`
}

type PromptStore struct {
	ddb    PromptAPI
	table  string
	store  *objstore.Store
	bucket string
	logger *zap.Logger
	now    func() time.Time
}

// NewPromptStore serves built-ins only when table is empty.
func NewPromptStore(ddb PromptAPI, table string, store *objstore.Store, bucket string, logger *zap.Logger) *PromptStore {
	return &PromptStore{ddb: ddb, table: table, store: store, bucket: bucket, logger: logger, now: time.Now}
}

func (p *PromptStore) enabled() bool {
	return p != nil && p.ddb != nil && p.table != ""
}

// Get resolves a stored template version, falling back to the built-in
// set when nothing is stored and to the fallback template on store errors.
func (p *PromptStore) Get(ctx context.Context, id, version string) Template {
	if !p.enabled() {
		return BuiltinTemplate(id)
	}
	if version == "" {
		version = LatestVersion
	}
	t, found, err := p.load(ctx, id, version)
	if err != nil {
		p.logger.Error("prompt template lookup failed", zap.String("template_id", id), zap.String("version", version), zap.Error(err))
		return BuiltinTemplate(TemplateFallback)
	}
	if !found {
		return BuiltinTemplate(id)
	}
	return t
}

func (p *PromptStore) load(ctx context.Context, id, version string) (Template, bool, error) {
	out, err := p.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(p.table),
		Key: map[string]ddbtypes.AttributeValue{
			"template_id": &ddbtypes.AttributeValueMemberS{Value: id},
			"version":     &ddbtypes.AttributeValueMemberS{Value: version},
		},
	})
	if err != nil {
		return Template{}, false, fmt.Errorf("ddb get template %s@%s: %w", id, version, err)
	}
	if len(out.Item) == 0 {
		return Template{}, false, nil
	}
	var rec TemplateRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return Template{}, false, fmt.Errorf("unmarshal template record: %w", err)
	}
	var t Template
	if err := p.store.GetJSON(ctx, p.bucket, rec.S3Key, &t); err != nil {
		return Template{}, false, err
	}
	return t, true, nil
}

func templateKey(id, version string) string {
	return fmt.Sprintf("prompts/%s/%s.json", id, version)
}

// Save writes the body to S3, the version row, and moves the latest
// pointer.
func (p *PromptStore) Save(ctx context.Context, id string, t Template, version string, metadata map[string]any) error {
	if !p.enabled() || p.store == nil || p.bucket == "" {
		return ErrPromptStoreDisabled
	}
	if id == "" || version == "" || version == LatestVersion {
		return fmt.Errorf("invalid template id %q or version %q", id, version)
	}
	key := templateKey(id, version)
	if err := p.store.PutJSON(ctx, p.bucket, key, t); err != nil {
		return err
	}

	now := p.now().UTC().Format(timeLayout)
	if metadata == nil {
		metadata = map[string]any{}
	}
	rows := []TemplateRecord{
		{TemplateID: id, Version: version, S3Key: key, CreatedAt: now, Metadata: metadata},
		{TemplateID: id, Version: LatestVersion, S3Key: key, ActualVersion: version, UpdatedAt: now},
	}
	for _, r := range rows {
		item, err := attributevalue.MarshalMap(r)
		if err != nil {
			return fmt.Errorf("marshal template record: %w", err)
		}
		if _, err := p.ddb.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(p.table), Item: item}); err != nil {
			return fmt.Errorf("ddb put template %s@%s: %w", id, r.Version, err)
		}
	}
	p.logger.Info("prompt template saved", zap.String("template_id", id), zap.String("version", version))
	return nil
}

// List returns stored rows followed by the built-in catalogue. A scan
// failure is logged and only built-ins are returned.
func (p *PromptStore) List(ctx context.Context) []TemplateRecord {
	var out []TemplateRecord
	if p.enabled() {
		recs, err := p.scan(ctx)
		if err != nil {
			p.logger.Error("list prompt templates failed", zap.Error(err))
		}
		out = append(out, recs...)
	}
	for _, b := range builtins.Templates {
		if b.Listed {
			out = append(out, TemplateRecord{TemplateID: b.ID, Name: b.Name, Source: "builtin"})
		}
	}
	return out
}

func (p *PromptStore) scan(ctx context.Context) ([]TemplateRecord, error) {
	var (
		out   []TemplateRecord
		start map[string]ddbtypes.AttributeValue
	)
	for {
		page, err := p.ddb.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String(p.table), ExclusiveStartKey: start})
		if err != nil {
			return out, fmt.Errorf("ddb scan %s: %w", p.table, err)
		}
		var recs []TemplateRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &recs); err != nil {
			return out, fmt.Errorf("unmarshal template records: %w", err)
		}
		out = append(out, recs...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = page.LastEvaluatedKey
	}
}
