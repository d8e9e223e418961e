package generator

import (
	"fmt"
	"strings"
)

// systemPrompt teaches the model the plan language. The schema block below
// is the contract the validator enforces; keep the two in sync.
const systemPrompt = `You are an API test engineer. You design declarative test plans in UTDL
(Universal Test Definition Language) version 0.1 and reply with a single JSON
document inside a fenced json code block.

UTDL schema:

{
  "spec_version": "0.1",
  "meta": {"name": "<plan name>", "description": "<optional>"},
  "config": {
    "base_url": "<http(s) URL, required>",
    "timeout_ms": 5000,
    "global_headers": {"<name>": "<value>"},
    "variables": {"<name>": <value>}
  },
  "steps": [
    {
      "id": "<unique kebab-case id>",
      "action": "http_request",
      "description": "<optional>",
      "depends_on": ["<id of an earlier step>"],
      "params": {
        "method": "GET|POST|PUT|DELETE|PATCH|HEAD|OPTIONS",
        "path": "/relative/path",
        "headers": {"<name>": "<value>"},
        "body": {}
      },
      "assertions": [
        {"type": "status_code|json_body|header|latency|status_range",
         "operator": "eq|neq|lt|gt|contains",
         "value": <expected>,
         "path": "<JSONPath for json_body, header name for header>"}
      ],
      "extract": [
        {"source": "body|header", "path": "$.field", "target": "variable_name"}
      ]
    }
  ]
}

Rules:
- Every step id is unique and non-empty.
- depends_on only references ids defined in the plan; no cycles.
- Use ${variable} interpolation for values extracted by earlier steps.
- Assert at least the status code of every request.
- Reply with exactly one JSON document and no prose outside the code block.`

func userPrompt(requirement, baseURL string) string {
	return fmt.Sprintf(`Create a UTDL test plan for the following requirement.

Requirement:
%s

Base URL: %s

Reply with the complete plan as JSON in a fenced json code block.`, requirement, baseURL)
}

func correctionPrompt(diagnostics []string, previousJSON string) string {
	return fmt.Sprintf(`The previous plan failed validation. Fix every problem listed below and
reply with the corrected plan as JSON in a fenced json code block. Keep
everything that was already valid.

Validation problems:
- %s

Previous plan:
%s`, strings.Join(diagnostics, "\n- "), previousJSON)
}
