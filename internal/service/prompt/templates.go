package prompt

import "github.com/zhouzirui/drafting/backend/internal/model/document"

const roleDefinition = "You are an expert professional communication assistant specializing in " +
	"corporate and academic writing. Your task is to generate clear, well-structured, " +
	"and contextually appropriate content for business and academic environments."

const emailTask = "Generate a professional email based on the provided context. " +
	"The email should be clear, concise, and appropriate for workplace communication."

const reportTask = "Generate a comprehensive report based on the provided topic and requirements. " +
	"The report should be well-organized, informative, and suitable for professional presentation."

// Every tone has its own hand-written guidance; none is derived from another.
var emailToneGuidance = map[document.Tone]string{
	document.ToneProfessional: "Use a professional and respectful tone. Maintain formality while being approachable. " +
		"Avoid overly casual language or slang.",
	document.ToneCasual: "Use a casual and friendly tone while maintaining professionalism. " +
		"It's acceptable to be conversational, but remain respectful.",
	document.ToneFormal: "Use a formal and reserved tone. Maintain proper business etiquette and avoid contractions. " +
		"Use formal salutations and closings.",
	document.ToneFriendly: "Use a warm and friendly tone while remaining professional. " +
		"Show enthusiasm and approachability in your language.",
}

var reportToneGuidance = map[document.Tone]string{
	document.ToneProfessional: "Use a professional and objective tone. Present information clearly and factually. " +
		"Maintain consistency throughout the report.",
	document.ToneFormal: "Use a formal and academic tone. Employ precise language and avoid contractions. " +
		"Structure content with proper headings and logical flow.",
	document.ToneCasual: "Use a casual yet informative tone. Present information in an accessible way " +
		"while maintaining credibility and clarity.",
	document.ToneFriendly: "Use an approachable and engaging tone. Make complex information accessible " +
		"while maintaining professionalism and accuracy.",
}

var structureGuidance = map[document.Structure]string{
	document.StructureExecutiveSummary: "- Start with a concise executive summary (2-3 paragraphs)\n" +
		"- Highlight key findings and recommendations\n" +
		"- Focus on high-level insights and actionable conclusions\n" +
		"- Keep the overall length concise (500-800 words)",
	document.StructureDetailed: "- Include a brief introduction\n" +
		"- Organize content into clear sections with headings\n" +
		"- Provide detailed analysis and supporting information\n" +
		"- Include a conclusion section summarizing key takeaways\n" +
		"- Aim for comprehensive coverage (1000-1500 words)",
	document.StructureBulletPoints: "- Use bullet points for main ideas\n" +
		"- Organize into logical categories or sections\n" +
		"- Keep each point concise and focused\n" +
		"- Use sub-bullets for supporting details where appropriate\n" +
		"- Prioritize clarity and scannability",
}

const emailFormat = "- Include an appropriate greeting\n" +
	"- Structure the content in clear paragraphs\n" +
	"- Use proper spacing between sections\n" +
	"- Include a professional closing\n" +
	"- Do NOT include a subject line in the body (it will be handled separately)"

const reportFormat = "- Use clear section headings (use ## for main sections)\n" +
	"- Maintain consistent formatting throughout\n" +
	"- Use proper paragraph spacing\n" +
	"- Ensure logical flow between sections\n" +
	"- Do NOT include page numbers or date stamps"

const emailClosing = "Generate the email content now. Include only the email body without subject line."

const reportClosing = "Generate the complete report now. Include appropriate headings and sections " +
	"based on the structure specified above."
