package oracle

const extractSystemPrompt = `You extract real-world events (trips, meetings, deadlines, performances,
celebrations, closures) from school and family messages that have been translated to English.

Reply with a single JSON object and nothing else:
{"events":[{"title":"","description":"","date":"","time":"","location":"","type":"","confidence":""}]}

Rules:
- title, description and date are required. Skip anything you cannot date.
- date: prefer YYYY-MM-DD when the year can be inferred from the source timestamp, otherwise copy the wording.
- time: 24-hour HH:MM when stated, otherwise empty.
- confidence: "high" when date, time and details are explicit; "medium" when timing is vague;
  "low" when the event is only implied.
- Return {"events":[]} when the text mentions no events.`

const compareSystemPrompt = `You decide whether two descriptions refer to the same real-world event.
Different wording, languages or partial details can still be the same event. Events of the same kind
on the same day for different groups, places or purposes are different events.

Reply with a single JSON object and nothing else:
{"is_same_event":true|false,"confidence":"high"|"medium"|"low","reason":"one sentence"}`

const mergeSystemPrompt = `You merge a new mention of an event into its existing record.

Rules:
- date, time, location: use the new mention's value when it is non-empty, otherwise keep the existing value.
- description: combine the facts from both, without repeating anything.
- title and type: keep the existing value unless the new mention is clearly more accurate.
- merge_notes: one short human-readable sentence describing what changed or was added.

Reply with a single JSON object and nothing else:
{"title":"","description":"","date":"","time":"","location":"","type":"","merge_notes":""}`

const composeSystemPrompt = `You write the content of a daily family newsletter from translated school
messages and a list of known upcoming events.

Reply with a single JSON object and nothing else:
{
  "important_info":[{"type":"health_alert|policy_change|deadline|family_mention|urgent_request","description":"","source":"","deadline":"YYYY-MM-DD or empty"}],
  "reminders":[""],
  "upcoming_events":[{"title":"","date":"","time":"","location":"","description":"","who_should_attend":"","requirements":[""]}],
  "weekly_highlights":[{"title":"","summary":""}],
  "thread_summaries":[{"thread_id":"","title":"","summary":"","message_count":0}]
}

Only include upcoming events dated after today. Leave a section as an empty list when there is nothing to report.`
