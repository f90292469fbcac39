package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"go.uber.org/zap"
)

type RepairResult struct {
	Ok        bool   `json:"ok"`
	QueryID   string `json:"query_id,omitempty"`
	State     string `json:"state,omitempty"`
	Database  string `json:"database,omitempty"`
	Table     string `json:"table,omitempty"`
	Workgroup string `json:"workgroup,omitempty"`
	Output    string `json:"output,omitempty"`
}

// PartitionRepairer loads partitions written by QualityETL into the
// catalog with MSCK REPAIR TABLE.
type PartitionRepairer struct {
	athena  AthenaClient
	cfg     AthenaConfig
	maxWait time.Duration
	poll    time.Duration
	logger  *zap.Logger
}

func NewPartitionRepairer(awsCfg aws.Config, c AthenaConfig, logger *zap.Logger) *PartitionRepairer {
	return &PartitionRepairer{
		athena:  athena.NewFromConfig(awsCfg),
		cfg:     c,
		maxWait: 60 * time.Second,
		poll:    2 * time.Second,
		logger:  logger,
	}
}

func (h *PartitionRepairer) Handle(ctx context.Context) (RepairResult, error) {
	q := fmt.Sprintf("MSCK REPAIR TABLE %s;", h.cfg.Table)

	qid, _, err := Exec(ctx, h.athena, q, h.cfg.options(h.maxWait, h.poll))
	if err != nil {
		res := RepairResult{Ok: false, QueryID: qid}
		var qe *QueryError
		if errors.As(err, &qe) {
			res.QueryID, res.State = qe.QueryExecutionID, qe.State
		}
		h.logger.Error("partition repair failed", zap.String("table", h.cfg.Table), zap.Error(err))
		return res, fmt.Errorf("repair %s: %w", h.cfg.Table, err)
	}

	h.logger.Info("partition repair succeeded", zap.String("qid", qid), zap.String("table", h.cfg.Table))
	return RepairResult{
		Ok:        true,
		QueryID:   qid,
		State:     "SUCCEEDED",
		Database:  h.cfg.Database,
		Table:     h.cfg.Table,
		Workgroup: h.cfg.Workgroup,
		Output:    h.cfg.Output,
	}, nil
}
