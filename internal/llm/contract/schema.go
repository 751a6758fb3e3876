package contract

import "github.com/santhosh-tekuri/jsonschema/v5"

const questionDef = `{
	"type": "object",
	"required": ["type", "prompt", "answer"],
	"properties": {
		"type": {"enum": ["single_choice", "multi_choice", "fill_blank", "code", "essay", "diagram"]},
		"prompt": {"type": "string", "minLength": 1},
		"options": {"type": "array", "items": {"type": "string"}},
		"answer": {
			"anyOf": [
				{"type": "string"},
				{"type": "number"},
				{"type": "boolean"},
				{"type": "array", "items": {"type": "string"}}
			]
		},
		"explanation": {"type": "string"},
		"tags": {"type": "array", "items": {"type": "string"}},
		"hint": {"type": "string"},
		"code": {"type": "string"},
		"difficulty": {"enum": ["", "Easy", "Medium", "Hard"]},
		"source": {"type": "string"}
	}
}`

const syllabusDef = `{
	"type": "object",
	"required": ["courseName", "modules"],
	"properties": {
		"courseName": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"term": {"type": "string"},
		"modules": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["title", "keyPoints"],
				"properties": {
					"title": {"type": "string", "minLength": 1},
					"keyPoints": {"type": "array", "items": {"type": "string"}}
				}
			}
		}
	}
}`

var (
	questionsSchema = jsonschema.MustCompileString("studyhall://questions.json", `{
		"type": "object",
		"required": ["questions"],
		"properties": {"questions": {"type": "array", "items": `+questionDef+`}}
	}`)

	syllabusSchema = jsonschema.MustCompileString("studyhall://syllabus.json", syllabusDef)

	questionSchema = jsonschema.MustCompileString("studyhall://question.json", questionDef)

	verdictSchema = jsonschema.MustCompileString("studyhall://verdict.json", `{
		"type": "object",
		"required": ["score", "isCorrect", "feedback"],
		"properties": {
			"score": {"type": "number"},
			"isCorrect": {"type": "boolean"},
			"feedback": {"type": "string", "minLength": 1}
		}
	}`)
)
