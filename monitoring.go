package goboreal

import (
	"context"
	"time"
)

// QueryStatus is the server-side lifecycle state of a submitted query.
type QueryStatus int

const (
	// QueryStatusNoData means the server has no record of the query yet.
	QueryStatusNoData QueryStatus = iota
	// QueryStatusRunning means the query is executing.
	QueryStatusRunning
	// QueryStatusQueued means the query is waiting for warehouse resources.
	QueryStatusQueued
	// QueryStatusResumingWarehouse means the warehouse is starting up for the query.
	QueryStatusResumingWarehouse
	// QueryStatusQueuedRepairingWarehouse means the query is queued behind warehouse repair.
	QueryStatusQueuedRepairingWarehouse
	// QueryStatusBlocked means the query is blocked on a lock.
	QueryStatusBlocked
	// QueryStatusAborting means the query is being canceled.
	QueryStatusAborting
	// QueryStatusSuccess means the query completed successfully.
	QueryStatusSuccess
	// QueryStatusFailedWithError means the query terminated with a user-visible error.
	QueryStatusFailedWithError
	// QueryStatusFailedWithIncident means the query terminated with a server incident.
	QueryStatusFailedWithIncident
	// QueryStatusAborted means the query was canceled.
	QueryStatusAborted
	// QueryStatusDisconnected means the session was lost while the query ran.
	QueryStatusDisconnected
	// QueryStatusRestarted means the query was restarted by the server.
	QueryStatusRestarted
)

var queryStatusNames = map[QueryStatus]string{
	QueryStatusNoData:                   "NO_DATA",
	QueryStatusRunning:                  "RUNNING",
	QueryStatusQueued:                   "QUEUED",
	QueryStatusResumingWarehouse:        "RESUMING_WAREHOUSE",
	QueryStatusQueuedRepairingWarehouse: "QUEUED_REPAIRING_WAREHOUSE",
	QueryStatusBlocked:                  "BLOCKED",
	QueryStatusAborting:                 "ABORTING",
	QueryStatusSuccess:                  "SUCCESS",
	QueryStatusFailedWithError:          "FAILED_WITH_ERROR",
	QueryStatusFailedWithIncident:       "FAILED_WITH_INCIDENT",
	QueryStatusAborted:                  "ABORTED",
	QueryStatusDisconnected:             "DISCONNECTED",
	QueryStatusRestarted:                "RESTARTED",
}

func (qs QueryStatus) String() string {
	if name, ok := queryStatusNames[qs]; ok {
		return name
	}
	return "NO_DATA"
}

// isRunning reports whether the query has not reached a terminal state.
func (qs QueryStatus) isRunning() bool {
	switch qs {
	case QueryStatusRunning, QueryStatusQueued, QueryStatusResumingWarehouse,
		QueryStatusQueuedRepairingWarehouse, QueryStatusBlocked, QueryStatusNoData:
		return true
	}
	return false
}

// isError reports whether the query reached a terminal failure state.
func (qs QueryStatus) isError() bool {
	switch qs {
	case QueryStatusAborting, QueryStatusFailedWithError, QueryStatusAborted,
		QueryStatusFailedWithIncident, QueryStatusDisconnected:
		return true
	}
	return false
}

func strToQueryStatus(in string) QueryStatus {
	for status, name := range queryStatusNames {
		if name == in {
			return status
		}
	}
	return QueryStatusNoData
}

const (
	defaultPollInterval = 1 * time.Second
	defaultPollBudget   = 30
)

// waitForQueryCompletion polls the status of queryID at a fixed interval until
// it reaches a terminal state or the attempt budget runs out. A failed query
// surfaces the server-reported error; an exhausted budget is a distinct
// Operational condition so the caller can keep waiting later.
func waitForQueryCompletion(ctx context.Context, st SessionTransport, queryID string, interval time.Duration, budget int) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if budget <= 0 {
		budget = defaultPollBudget
	}
	for attempt := 0; attempt < budget; attempt++ {
		status, err := st.PollStatus(ctx, queryID)
		if err != nil {
			return err
		}
		if !status.isRunning() {
			logger.WithContext(ctx).Infof("query %v reached terminal status %v", queryID, status)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return &BorealError{
		Number:      ErrPollBudgetExceeded,
		SQLState:    SQLStateConnectionFailure,
		Class:       ClassOperational,
		QueryID:     queryID,
		Message:     errMsgPollBudgetExceeded,
		MessageArgs: []interface{}{budget},
	}
}
