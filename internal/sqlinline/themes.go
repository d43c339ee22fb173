package sqlinline

const QSelectTheme = `--sql 2fdc9ff9-ebd8-4699-b417-46237ac5e5cd
select id, name, coalesce(guidance_text, ''), type, metadata
from themes
where id = $1::uuid;
`

const QUpsertTheme = `--sql a999a71b-9f6a-4621-8545-dcfe86218760
insert into themes (id, name, guidance_text, type, metadata)
values ($1::uuid, $2::text, nullif($3::text, ''), $4::text, coalesce($5::jsonb, '{}'::jsonb))
on conflict (id) do update set
    name = excluded.name,
    guidance_text = excluded.guidance_text,
    type = excluded.type,
    metadata = excluded.metadata;
`
