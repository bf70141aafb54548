package ai

const ExtractPrompt = `
# Task Context
You are tasked with extracting **entities and the relationships between them** from a passage of text. The result is written into a knowledge graph.

# Detailed Task Description & Rules
## Entity Extraction
1. Identify the meaningful entities in the text: people, places, organizations, concepts, events, products.
2. For each entity, extract:
   - **name:** the entity name as written in the text. Use clear and consistent naming; refer to the same entity with the same name every time.
   - **type:** a short type tag such as Person, Organization, Location, Concept, Event.

## Relationship Extraction
1. From the identified entities, determine the clear relationships between pairs of entities.
2. For each relationship, extract:
   - **source:** the name of the source entity, exactly as used in the entity list.
   - **target:** the name of the target entity, exactly as used in the entity list.
   - **type:** the relationship as an uppercase verb phrase joined with underscores (WORKS_FOR, INVENTED, LOCATED_IN).
3. Only relate entities that appear in the entity list.

# Examples
**Text:**
Alexander Graham Bell invented the telephone in 1876 while working in Boston.

**Output:**
{
  "entities": [
    {"name": "Alexander Graham Bell", "type": "Person"},
    {"name": "telephone", "type": "Concept"},
    {"name": "Boston", "type": "Location"}
  ],
  "relationships": [
    {"source": "Alexander Graham Bell", "target": "telephone", "type": "INVENTED"},
    {"source": "Alexander Graham Bell", "target": "Boston", "type": "WORKED_IN"}
  ]
}

# Output Formatting
Return a single valid JSON object with the keys "entities" and "relationships". Use empty arrays if nothing is found.
Do not include any commentary outside of the JSON.
`

const PlanPrompt = `
# Task Context
Extract the key entities, concepts, and topics from the user's question.

# Output Formatting
Return them as a comma-separated list and nothing else.
`

const AnswerPrompt = `
# Task Context
You are a helpful assistant that answers questions using the provided context from a knowledge graph.

# Detailed Task Description & Rules
- Answer the question accurately based on the context.
- Cite which sources you use (Source 1, Source 2, etc.).
- If the context doesn't contain enough information, say so.
- Use the entity relationships to provide deeper insights.
- Be clear and concise.
`

const AnswerUserPrompt = `Context:
%s

Question: %s

Answer:`

const NoDataPrompt = `
# Task Context
You are a helpful assistant. The user asked a question, but no relevant information was found in the knowledge base.

# Background Data
User's question: %s

# Detailed Task Description & Rules
- Generate a brief, helpful response explaining that no relevant information is available in the knowledge base.
- Do not apologize excessively. Be concise and direct.
- Do not invent or hallucinate any information.
- Suggest that the user could ingest additional documents if they want this information to be available.

# Output Formatting
- Respond in the SAME LANGUAGE as the user's question.
- Keep the response short (1-2 sentences).
`
