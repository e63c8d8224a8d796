package constant

import "strings"

// Language is the closed set of narration languages a lecture can target.
type Language string

const (
	LanguageEnglish    Language = "english"
	LanguageFrench     Language = "french"
	LanguageSpanish    Language = "spanish"
	LanguageGerman     Language = "german"
	LanguageItalian    Language = "italian"
	LanguagePortuguese Language = "portuguese"
	LanguageDutch      Language = "dutch"
	LanguageTurkish    Language = "turkish"
	LanguageJapanese   Language = "japanese"
	LanguageChinese    Language = "chinese"
)

var Languages = []Language{
	LanguageEnglish,
	LanguageFrench,
	LanguageSpanish,
	LanguageGerman,
	LanguageItalian,
	LanguagePortuguese,
	LanguageDutch,
	LanguageTurkish,
	LanguageJapanese,
	LanguageChinese,
}

const DefaultVoice = "alloy"

func ParseLanguage(value string) (Language, bool) {
	lang := Language(strings.ToLower(strings.TrimSpace(value)))
	for _, l := range Languages {
		if l == lang {
			return l, true
		}
	}
	return "", false
}

func (l Language) String() string {
	return string(l)
}

// DisplayName is the language name used inside model prompts.
func (l Language) DisplayName() string {
	switch l {
	case LanguageFrench:
		return "French"
	case LanguageSpanish:
		return "Spanish"
	case LanguageGerman:
		return "German"
	case LanguageItalian:
		return "Italian"
	case LanguagePortuguese:
		return "Portuguese"
	case LanguageDutch:
		return "Dutch"
	case LanguageTurkish:
		return "Turkish"
	case LanguageJapanese:
		return "Japanese"
	case LanguageChinese:
		return "Chinese"
	default:
		return "English"
	}
}

// Greeting opens every fallback script.
func (l Language) Greeting() string {
	switch l {
	case LanguageFrench:
		return "Bonjour à tous,"
	case LanguageSpanish:
		return "Hola a todos,"
	case LanguageGerman:
		return "Hallo zusammen,"
	case LanguageItalian:
		return "Ciao a tutti,"
	case LanguagePortuguese:
		return "Olá a todos,"
	case LanguageDutch:
		return "Hallo allemaal,"
	case LanguageTurkish:
		return "Herkese merhaba,"
	case LanguageJapanese:
		return "皆さん、こんにちは。"
	case LanguageChinese:
		return "大家好，"
	default:
		return "Hello everyone,"
	}
}

// FallbackIntro introduces the slide excerpt in a fallback script.
func (l Language) FallbackIntro() string {
	switch l {
	case LanguageFrench:
		return "cette diapositive présente le contenu suivant :"
	case LanguageSpanish:
		return "esta diapositiva presenta el siguiente contenido:"
	case LanguageGerman:
		return "diese Folie behandelt folgenden Inhalt:"
	case LanguageItalian:
		return "questa diapositiva presenta il seguente contenuto:"
	case LanguagePortuguese:
		return "este slide apresenta o seguinte conteúdo:"
	case LanguageDutch:
		return "deze dia behandelt de volgende inhoud:"
	case LanguageTurkish:
		return "bu slayt şu içeriği sunuyor:"
	case LanguageJapanese:
		return "このスライドの内容は次のとおりです。"
	case LanguageChinese:
		return "这张幻灯片的内容如下："
	default:
		return "this slide covers the following content:"
	}
}

// FallbackEmpty is spoken for a slide without any extractable text.
func (l Language) FallbackEmpty() string {
	switch l {
	case LanguageFrench:
		return "prenons un moment pour observer cette diapositive."
	case LanguageSpanish:
		return "tomemos un momento para observar esta diapositiva."
	case LanguageGerman:
		return "nehmen wir uns einen Moment Zeit für diese Folie."
	case LanguageItalian:
		return "prendiamoci un momento per osservare questa diapositiva."
	case LanguagePortuguese:
		return "vamos dedicar um momento a este slide."
	case LanguageDutch:
		return "laten we even naar deze dia kijken."
	case LanguageTurkish:
		return "bu slayta biraz göz atalım."
	case LanguageJapanese:
		return "このスライドを少し見てみましょう。"
	case LanguageChinese:
		return "让我们花点时间看看这张幻灯片。"
	default:
		return "let's take a moment to look at this slide."
	}
}

// Voice selects the synthesis voice. Languages without a dedicated voice use DefaultVoice.
func (l Language) Voice() string {
	switch l {
	case LanguageFrench:
		return "nova"
	case LanguageSpanish:
		return "shimmer"
	case LanguageGerman:
		return "onyx"
	case LanguageItalian:
		return "fable"
	case LanguagePortuguese:
		return "echo"
	default:
		return DefaultVoice
	}
}

// WordsPerMinute is the average speaking rate used to estimate audio duration.
// For Japanese and Chinese the rate is counted in characters.
func (l Language) WordsPerMinute() int {
	switch l {
	case LanguageFrench:
		return 160
	case LanguageSpanish:
		return 165
	case LanguageGerman:
		return 130
	case LanguageItalian:
		return 155
	case LanguagePortuguese:
		return 155
	case LanguageDutch:
		return 140
	case LanguageTurkish:
		return 135
	case LanguageJapanese:
		return 300
	case LanguageChinese:
		return 250
	default:
		return 150
	}
}

// CharacterTimed reports whether speaking rate is measured per character.
func (l Language) CharacterTimed() bool {
	return l == LanguageJapanese || l == LanguageChinese
}
