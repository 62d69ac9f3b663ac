package engine

import "errors"

var (
	errNoStartNode           = errors.New("engine: graph has no start node")
	errDanglingEdge          = errors.New("engine: node has no outgoing edge")
	errNoEdgeSelected        = errors.New("engine: no outgoing edge's condition matched and no default edge exists")
	errWalkBudgetExceeded    = errors.New("engine: graph walk exceeded its step budget")
	errExecutionEndedInError = errors.New("engine: execution reached end with a recorded error")
)
