package domain

// stageLanes assigns each stage to the lane whose workers hold the right
// resource class.
var stageLanes = map[JobKind]Lane{
	JobIngestURL:        LaneIO,
	JobIngestDoc:        LaneIO,
	JobIngestImage:      LaneIO,
	JobIngestYouTube:    LaneIO,
	JobDenoiseAudio:     LaneIO,
	JobPublishWarehouse: LaneIO,
	JobGraphPublish:     LaneIO,

	JobTranscribe:       LaneTranscribe,
	JobDiarizeAudio:     LaneTranscribe,
	JobVoiceprintEnroll: LaneTranscribe,
	JobVoiceprintMatch:  LaneTranscribe,
	JobVoiceprintReview: LaneTranscribe,

	JobChunkText:       LaneFastModel,
	JobChunkTranscript: LaneFastModel,
	JobEmbedChunks:     LaneFastModel,
	JobEnrichChunks:    LaneFastModel,
	JobGraphOntology:   LaneFastModel,
	JobGraphEntities:   LaneFastModel,
	JobGraphRelations:  LaneFastModel,

	JobEnrichDoc: LaneDeepModel,
}

// LaneFor returns the queue lane a stage runs on.
func LaneFor(kind JobKind) Lane {
	if lane, ok := stageLanes[kind]; ok {
		return lane
	}
	return LaneIO
}

// stageSuccessors is the pipeline DAG: the stages enqueued after each stage
// commits its manifest. A stage whose inputs come from a sibling fails
// retryable until those inputs exist, so the producer also re-enqueues its
// consumers on commit (transcribe_whisper re-enqueues chunk_transcript and
// diarize_audio). The short-circuit on existing output absorbs duplicates.
var stageSuccessors = map[JobKind][]JobKind{
	JobIngestURL:     {JobChunkText},
	JobIngestDoc:     {JobChunkText},
	JobIngestImage:   {JobChunkText},
	JobIngestYouTube: {JobDenoiseAudio},

	JobDenoiseAudio: {JobTranscribe, JobChunkTranscript, JobDiarizeAudio},
	JobTranscribe:   {JobChunkTranscript, JobDiarizeAudio},
	JobDiarizeAudio: {JobVoiceprintEnroll, JobVoiceprintMatch, JobVoiceprintReview},

	JobVoiceprintEnroll: {JobVoiceprintMatch},
	JobVoiceprintMatch:  {JobVoiceprintReview},

	JobChunkText:       {JobEmbedChunks, JobEnrichDoc, JobEnrichChunks},
	JobChunkTranscript: {JobEmbedChunks, JobEnrichChunks},

	JobEnrichChunks: {JobPublishWarehouse, JobGraphOntology, JobGraphEntities},

	JobGraphEntities:  {JobGraphRelations},
	JobGraphRelations: {JobGraphPublish},
}

// Successors returns the stages to enqueue after kind completes.
func Successors(kind JobKind) []JobKind {
	return stageSuccessors[kind]
}
