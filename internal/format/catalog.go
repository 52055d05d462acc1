package format

// defaultCatalog returns the built-in format catalog.
// Concurrency limits are tuned to vendor API rate limits, not CPU capacity.
func defaultCatalog() []Metadata {
	return []Metadata{
		{
			ID:               "documentary",
			Name:             "Documentary",
			Duration:         DurationRange{Min: 300, Max: 1800},
			AspectRatio:      "16:9",
			ApplicableGenres: []string{"History", "Science", "True Crime", "Nature", "Biography"},
			CheckpointCount:  1,
			ConcurrencyLimit: 3,
			RequiresResearch: true,
			SupportedLanguages: []string{
				"en", "es", "de",
			},
			Placeholder: "The untold story of the deep-sea cables that carry the internet",
		},
		{
			ID:               "shorts",
			Name:             "Shorts",
			Duration:         DurationRange{Min: 15, Max: 60},
			AspectRatio:      "9:16",
			ApplicableGenres: []string{"Entertainment", "Education", "Lifestyle", "Comedy"},
			CheckpointCount:  1,
			ConcurrencyLimit: 5,
			RequiresResearch: false,
			SupportedLanguages: []string{
				"en", "es",
			},
			Placeholder: "3 kitchen hacks that will save you an hour every week",
		},
		{
			ID:               "advertisement",
			Name:             "Advertisement",
			Duration:         DurationRange{Min: 15, Max: 90},
			AspectRatio:      "16:9",
			ApplicableGenres: []string{"Product Launch", "Brand Story", "Promo", "Testimonial"},
			CheckpointCount:  1,
			ConcurrencyLimit: 3,
			RequiresResearch: false,
			SupportedLanguages: []string{
				"en", "es", "de", "fr",
			},
			Placeholder: "SmartApp — the productivity tool that saves you 2 hours a day",
		},
		{
			ID:               "educational",
			Name:             "Educational",
			Duration:         DurationRange{Min: 120, Max: 900},
			AspectRatio:      "16:9",
			ApplicableGenres: []string{"Tutorial", "Course", "Explainer", "Science"},
			CheckpointCount:  1,
			ConcurrencyLimit: 4,
			RequiresResearch: true,
			SupportedLanguages: []string{
				"en", "es", "de",
			},
			Placeholder: "How photosynthesis actually works, explained in 5 minutes",
		},
		{
			ID:               "movie",
			Name:             "Movie",
			Duration:         DurationRange{Min: 600, Max: 7200},
			AspectRatio:      "21:9",
			ApplicableGenres: []string{"Drama", "Thriller", "Sci-Fi", "Romance"},
			CheckpointCount:  1,
			ConcurrencyLimit: 3,
			RequiresResearch: false,
			SupportedLanguages: []string{
				"en",
			},
			Placeholder: "A lighthouse keeper discovers the fog is hiding something alive",
		},
		{
			ID:               "animation",
			Name:             "Animation",
			Duration:         DurationRange{Min: 60, Max: 1200},
			AspectRatio:      "16:9",
			ApplicableGenres: []string{"Kids", "Fantasy", "Adventure", "Comedy"},
			CheckpointCount:  1,
			ConcurrencyLimit: 4,
			RequiresResearch: false,
			SupportedLanguages: []string{
				"en", "es",
			},
			Placeholder: "A paper boat sails the gutter rivers of a rainy city",
		},
		{
			ID:               "explainer",
			Name:             "Explainer",
			Duration:         DurationRange{Min: 60, Max: 300},
			AspectRatio:      "16:9",
			ApplicableGenres: []string{"Technology", "Finance", "Health", "Startup"},
			CheckpointCount:  1,
			ConcurrencyLimit: 4,
			RequiresResearch: true,
			SupportedLanguages: []string{
				"en", "de",
			},
			Placeholder: "Why your bank transfer takes three days, in 90 seconds",
		},
		{
			ID:               "music-video",
			Name:             "Music Video",
			Duration:         DurationRange{Min: 120, Max: 360},
			AspectRatio:      "16:9",
			ApplicableGenres: []string{"Pop", "Hip-Hop", "Electronic", "Indie"},
			CheckpointCount:  1,
			ConcurrencyLimit: 5,
			RequiresResearch: false,
			SupportedLanguages: []string{
				"en",
			},
			Placeholder: "Neon-lit city montage for a synthwave track about leaving home",
		},
	}
}
