package vision

import "fmt"

func extractionPrompt(isVideo bool) string {
	media := "image"
	if isVideo {
		media = "video thumbnail"
	}
	return fmt.Sprintf(promptTemplate, media)
}

const promptTemplate = `Analyze this %s for a digital asset management system. Return a single JSON object with exactly these keys:

{
  "scene": {"setting": "<place type>", "setting_details": "<specific description>", "lighting": "bright | dim | natural | neon | mixed", "time_of_day": "day | night | indoor_neutral"},
  "people": {"count": <int>, "count_category": "none | individual | small_group | crowd", "age_groups": [], "activities": [], "emotions": [], "facing_camera": <bool>, "identifiable_faces": <bool>},
  "objects": {"equipment": [], "food_drink": [], "props": [], "brand_items": []},
  "text_content": {"headline": "<text or null>", "subheadline": "<text or null>", "cta": "<text or null>", "prices": [], "dates": [], "times": [], "locations": [], "phone_numbers": [], "urls": [], "promo_codes": []},
  "hardcoded_elements": {"has_date": <bool>, "has_location": <bool>, "has_price": <bool>, "has_promo_code": <bool>, "has_phone": <bool>, "reusability_score": <1-5>, "reusability_notes": "<why>"},
  "composition": {"focal_point": "center | left | right | top | bottom | distributed", "negative_space": {"available": <bool>, "positions": [], "suitable_for_text_overlay": <bool>}, "clutter_level": "minimal | moderate | busy"},
  "colors": {"dominant": ["#hex"], "palette_type": "<type>", "on_brand": <bool>, "saturation": "vibrant | muted | desaturated", "contrast": "high | medium | low"},
  "style": {"type": "photography | graphic_design | illustration | 3d_render | mixed", "photo_style": "<style>", "design_style": "<style>"},
  "quality": {"sharpness": "sharp | slightly_soft | blurry", "noise_level": "clean | some_grain | noisy", "professional_grade": <bool>},
  "brand": {"logo_present": <bool>, "logo_placement": "<position or none>", "brand_colors_used": <bool>, "brand_compliance_score": <1-5>},
  "mood": {"primary": "<mood>", "energy_level": <1-10>, "emotions_evoked": [], "suitable_for": []},
  "editorial": {"suggested_use": [], "pairs_well_with": [], "story_position": "opener | middle | climax | closer", "standalone_capable": <bool>},
  "video_metadata": {},
  "auto_tags": ["<searchable tags, be comprehensive>"],
  "semantic_description": "<detailed natural language description for search>",
  "search_queries": ["<queries a marketer would type to find this>"]
}

Use null for unknown scalars and [] for empty lists. Reply with JSON only.`
