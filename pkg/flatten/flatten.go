// Package flatten converts nested quality API entities into flat records
// suitable for newline-delimited JSON output.
//
// Two fixed traversal schedules are supported:
//
//	form:       questionGroups -> questions -> answerOptions
//	evaluation: answers.questionGroupScores -> questionScores
//
// Each nesting stage contributes its fields under a stage prefix so parent
// and child fields never collide. Expansion is a cartesian product: one
// record per leaf, each carrying a full copy of its ancestors' prefixed
// fields. A branch with an empty child list at any stage produces no
// records at all. All functions are pure; input maps are never mutated.
package flatten

// Record is a single flat key-value record, one line of NDJSON output.
type Record map[string]any

// Stage prefixes, one per nesting level below the root.
const (
	stageQuestionGroups      = "questiongroups"
	stageQuestions           = "questions"
	stageAnswerOptions       = "answeroptions"
	stageQuestionGroupScores = "questiongroupscores"
	stageQuestionScores      = "questionscores"
)

// formSummaryFields is the fixed allow-list for root form summaries.
// Unknown fields are dropped, missing fields stay absent.
var formSummaryFields = []string{
	"id",
	"name",
	"modifiedDate",
	"published",
	"contextId",
	"language",
}

// clone returns a shallow copy of the record.
func (r Record) clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// addStage copies every field of entity except childKey into r, prefixed
// with the stage name. The input entity is left untouched.
func addStage(r Record, stage string, entity map[string]any, childKey string) {
	for k, v := range entity {
		if k == childKey {
			continue
		}
		r[stage+"_"+k] = v
	}
}

// children extracts the named list attribute of an entity as a slice of
// child entities. A missing, null, or non-list attribute yields nil.
func children(entity map[string]any, key string) []map[string]any {
	raw, ok := entity[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, v := range raw {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// stringField reads a field as a string; absent or non-string yields "".
func stringField(entity map[string]any, key string) string {
	s, _ := entity[key].(string)
	return s
}

// Form flattens one published form into question-group records: one record
// per answer option, linked back to the form via the formid field.
func Form(form map[string]any) []Record {
	formID := stringField(form, "id")

	var records []Record
	for _, group := range children(form, "questionGroups") {
		groupRec := Record{"formid": formID}
		addStage(groupRec, stageQuestionGroups, group, "questions")

		for _, question := range children(group, "questions") {
			questionRec := groupRec.clone()
			addStage(questionRec, stageQuestions, question, "answerOptions")

			for _, option := range children(question, "answerOptions") {
				rec := questionRec.clone()
				addStage(rec, stageAnswerOptions, option, "")
				records = append(records, rec)
			}
		}
	}
	return records
}

// Evaluation flattens one completed evaluation into question-score records:
// one record per question score, linked back via evaluationid and
// conversationid (the pair that also names the output file).
func Evaluation(evaluation map[string]any) []Record {
	evaluationID := stringField(evaluation, "id")
	conversationID := stringField(evaluation, "conversationId")

	answers, _ := evaluation["answers"].(map[string]any)

	var records []Record
	for _, groupScore := range children(answers, "questionGroupScores") {
		groupRec := Record{
			"evaluationid":   evaluationID,
			"conversationid": conversationID,
		}
		addStage(groupRec, stageQuestionGroupScores, groupScore, "questionScores")

		for _, questionScore := range children(groupScore, "questionScores") {
			rec := groupRec.clone()
			addStage(rec, stageQuestionScores, questionScore, "")
			records = append(records, rec)
		}
	}
	return records
}

// FormSummary extracts the allow-listed root fields of a form. With
// embedGroups the raw questionGroups attribute is carried along unprocessed;
// without it the summary holds scalar fields only.
func FormSummary(form map[string]any, embedGroups bool) Record {
	summary := Record{}
	for _, field := range formSummaryFields {
		if v, ok := form[field]; ok {
			summary[field] = v
		}
	}
	if embedGroups {
		if v, ok := form["questionGroups"]; ok {
			summary["questionGroups"] = v
		}
	}
	return summary
}
