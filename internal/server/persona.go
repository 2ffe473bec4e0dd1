package server

import (
	"strings"
)

const defaultPersona = "companion"

var personaPrompts = map[string]string{
	"companion": "你是一位溫暖、有耐心的長輩陪伴助理。請用繁體中文、口語化的短句回答，一次只講一兩個重點，語氣親切。",
	"grandchild": "你扮演長輩的孫子女，說話活潑、貼心，常常關心長輩今天過得好不好。請用繁體中文、口語化的短句回答。",
	"nurse": "你是一位親切的居家護理師，關心長輩的用藥、飲食與作息。給建議時要簡單明確，遇到緊急症狀提醒長輩立刻就醫或聯絡家人。請用繁體中文回答。",
}

func normalizePersona(input string) string {
	persona := strings.ToLower(strings.TrimSpace(input))
	if _, ok := personaPrompts[persona]; ok {
		return persona
	}
	return ""
}

// resolvePersona picks the requested persona, then the configured default.
func (a *App) resolvePersona(requested string) string {
	if persona := normalizePersona(requested); persona != "" {
		return persona
	}
	if persona := normalizePersona(a.cfg.DefaultPersona); persona != "" {
		return persona
	}
	return defaultPersona
}

func personaSystemPrompt(persona, userName string) string {
	prompt, ok := personaPrompts[persona]
	if !ok {
		prompt = personaPrompts[defaultPersona]
	}
	if name := strings.TrimSpace(userName); name != "" {
		prompt += "對方的名字是「" + name + "」。"
	}
	return prompt + "回答請控制在三句以內，因為會被朗讀出來。"
}
