package models

// These structs define the JSON payloads for HTTP requests and responses
// between the Cloud Workflow and the pipeline Cloud Functions.

// PipelineRequest is the input for the pipeline-runner function.
type PipelineRequest struct {
	RunID        string `json:"runId"`
	ManifestURI  string `json:"manifestUri"`
	ImageRoot    string `json:"imageRoot,omitempty"`
	ExportPrefix string `json:"exportPrefix,omitempty"`
	ExecutionID  string `json:"executionId"`
}

// PipelineResponse is the output of the pipeline-runner function.
type PipelineResponse struct {
	Status             string `json:"status"`
	RunID              string `json:"runId"`
	PageCount          int    `json:"pageCount"`
	SequenceCount      int    `json:"sequenceCount"`
	DegradedPages      int    `json:"degradedPages"`
	PagesExportURI     string `json:"pagesExportUri,omitempty"`
	SequencesExportURI string `json:"sequencesExportUri,omitempty"`
}

// WorkflowArgument is the argument handed to the processing workflow when a
// new manifest lands in the bucket.
type WorkflowArgument struct {
	RunID       string `json:"runId"`
	ManifestURI string `json:"manifestUri"`
}
