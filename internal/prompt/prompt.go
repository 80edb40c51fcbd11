// Package prompt maps user types to the system instruction that shapes
// the mentor persona for a conversation.
package prompt

// UserType selects the mentoring persona for a conversation.
type UserType string

const (
	// Aspiring is for users who have not started a business yet.
	Aspiring UserType = "aspiring"
	// Existing is for users who already run a business.
	Existing UserType = "existing"
	// General is the default persona for everyone else.
	General UserType = "general"
)

// instructions holds the fixed persona templates. Read-only after init.
var instructions = map[UserType]string{
	Aspiring: `You are an entrepreneurship AI mentor and people can ask you suggestions and instructions to how to start or implement their business idea in real time. You have to provide them the step by step procedures to implement their business and helps them to become an entrepreneur.

Focus on:
- Step-by-step implementation procedures
- Practical and actionable advice
- Legal requirements and compliance
- Market validation strategies
- Startup fundamentals and best practices
- Resource allocation and budgeting
- Timeline planning and milestones

Always provide detailed, structured responses with clear action items.`,

	Existing: `You are a business growth strategist and digital transformation expert.
Help existing business owners scale, automate, and digitally transform their businesses.
Provide suggestions on marketing strategies, technology adoption, operational efficiency, and funding options.
Focus on growth tactics, competitive positioning, and sustainable business expansion.

Always provide step-by-step guidance for implementation.`,

	General: `You are an entrepreneurship AI mentor and people can ask you suggestions and instructions to how to start or implement their business idea in real time. You have to provide them the step by step procedures to implement their business and helps them to become an entrepreneur.`,
}

// Normalize coerces an arbitrary user type string to a known UserType.
// Unrecognized values fall back to General rather than being rejected.
func Normalize(s string) UserType {
	switch UserType(s) {
	case Aspiring, Existing, General:
		return UserType(s)
	default:
		return General
	}
}

// Instruction returns the system instruction for the given user type.
func Instruction(t UserType) string {
	if text, ok := instructions[t]; ok {
		return text
	}
	return instructions[General]
}

// UserTypes returns all recognized user types.
func UserTypes() []UserType {
	return []UserType{Aspiring, Existing, General}
}
