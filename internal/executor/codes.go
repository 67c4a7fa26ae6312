package executor

import (
	"strings"

	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #region codes

// ErrorCode is a machine-parseable step failure of the form kind or kind:subject.
type ErrorCode string

const (
	CodeNavigateMissingTarget ErrorCode = "navigate_missing_target"
	CodeGraspMissingTarget    ErrorCode = "grasp_missing_target"
	CodePlaceMissingTarget    ErrorCode = "place_missing_target"
	CodeVerifyFailed          ErrorCode = "verify_failed"
	CodePolicyActionFailed    ErrorCode = "policy_action_failed"
)

// Kinds used with a subject.
const (
	KindSearchFailed   = "search_failed"
	KindNavigateFailed = "navigate_failed"
	KindGraspFailed    = "grasp_failed"
	KindPlaceFailed    = "place_failed"
	KindUnknownAction  = "unknown_action"
)

func SearchFailed(class world.ObjectClass) ErrorCode {
	return ErrorCode(KindSearchFailed + ":" + string(class))
}

func NavigateFailed(id string) ErrorCode { return ErrorCode(KindNavigateFailed + ":" + id) }

func GraspFailed(id string) ErrorCode { return ErrorCode(KindGraspFailed + ":" + id) }

func PlaceFailed(id string) ErrorCode { return ErrorCode(KindPlaceFailed + ":" + id) }

func UnknownAction(name string) ErrorCode { return ErrorCode(KindUnknownAction + ":" + name) }

// #endregion codes

// #region parse

// Parse splits a code into its kind and optional subject.
func (c ErrorCode) Parse() (kind, subject string) {
	kind, subject, _ = strings.Cut(string(c), ":")
	return kind, subject
}

// String implements fmt.Stringer.
func (c ErrorCode) String() string { return string(c) }

// #endregion parse
