package events

const unprocessedVideoUploadedSchema = `{
	"type": "object",
	"properties": {
		"user_id": {
			"type": "integer"
		},
		"video_path": {
			"type": "string",
			"minLength": 1
		}
	},
	"required": ["user_id", "video_path"]
}`

const convertVideoToHLSSchema = `{
	"type": "object",
	"properties": {
		"uuid": {
			"type": "string",
			"pattern": "^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$"
		},
		"video_path": {
			"type": "string",
			"minLength": 1
		}
	},
	"required": ["uuid", "video_path"]
}`

const confirmVideoHLSConvertedSchema = `{
	"type": "object",
	"properties": {
		"uuid": {
			"type": "string",
			"pattern": "^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$"
		}
	},
	"required": ["uuid"]
}`
