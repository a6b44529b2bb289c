package errors

// ErrorCode identifies a failure category. Codes are grouped by the pipeline
// stage that raises them so that logs and metrics can be filtered per stage.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes.
const (
	CodeOK             ErrorCode = "OK"
	CodeUnknown        ErrorCode = "COMMON_000"
	CodeInternal       ErrorCode = "COMMON_001"
	CodeInvalidParam   ErrorCode = "COMMON_002"
	CodeNotFound       ErrorCode = "COMMON_003"
	CodeConflict       ErrorCode = "COMMON_004"
	CodeTimeout        ErrorCode = "COMMON_005"
	CodeNotImplemented ErrorCode = "COMMON_006"
	CodeUnavailable    ErrorCode = "COMMON_007"
)

// Dataset stage error codes.
const (
	CodeDatasetRead     ErrorCode = "DATA_001"
	CodeDatasetFormat   ErrorCode = "DATA_002"
	CodeDatasetEmpty    ErrorCode = "DATA_003"
	CodeRecordBadLabel  ErrorCode = "DATA_004"
	CodeRecordDuplicate ErrorCode = "DATA_005"
)

// Chemistry / SMILES error codes.
const (
	CodeInvalidSMILES     ErrorCode = "CHEM_001"
	CodeUnmatchedRingBond ErrorCode = "CHEM_002"
	CodeUnknownElement    ErrorCode = "CHEM_003"
	CodeMultiFragment     ErrorCode = "CHEM_004"
)

// Graph construction error codes.
const (
	CodeGraphBuild      ErrorCode = "GRAPH_001"
	CodeGraphInvariant  ErrorCode = "GRAPH_002"
	CodeGraphTooLarge   ErrorCode = "GRAPH_003"
	CodeGraphCacheError ErrorCode = "GRAPH_004"
)

// Split stage error codes.
const (
	CodeSplitConfig     ErrorCode = "SPLIT_001"
	CodeSplitTooSmall   ErrorCode = "SPLIT_002"
	CodeSplitIncomplete ErrorCode = "SPLIT_003"
)

// Model serving error codes.
const (
	CodeServingUnavailable ErrorCode = "MODEL_001"
	CodeServingTimeout     ErrorCode = "MODEL_002"
	CodeServingResponse    ErrorCode = "MODEL_003"
	CodeModelNotReady      ErrorCode = "MODEL_004"
)

// Storage and messaging error codes.
const (
	CodeStoreQuery    ErrorCode = "STORE_001"
	CodeStoreMigrate  ErrorCode = "STORE_002"
	CodeArtifactIO    ErrorCode = "STORE_003"
	CodeEmbeddingSink ErrorCode = "STORE_004"
	CodeEventPublish  ErrorCode = "STORE_005"
)
